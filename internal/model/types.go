package model

import (
	"encoding/json"
	"time"
)

// VideoRecord is one candidate video as reported by the processing service.
type VideoRecord struct {
	ID                 int              `json:"id"`
	VideoID            string           `json:"video_id"`
	Title              string           `json:"title"`
	ChannelName        string           `json:"channel_name"`
	PublishedAt        *time.Time       `json:"published_at,omitempty"`
	Duration           int              `json:"duration"`
	ThumbnailURL       string           `json:"thumbnail_url,omitempty"`
	FeedID             *int             `json:"feed_id,omitempty"`
	IsShort            bool             `json:"is_short"`
	RawStatus          RawStatus        `json:"raw_status"`
	TranscriptStatus   TranscriptStatus `json:"transcript_status,omitempty"`
	TranscriptLanguage string           `json:"transcript_language,omitempty"`
}

// UnmarshalJSON reads raw_status, falling back to status for services that
// still send the short name.
func (r *VideoRecord) UnmarshalJSON(d []byte) error {
	type plain VideoRecord

	var v struct {
		plain
		Status RawStatus `json:"status"`
	}

	if err := json.Unmarshal(d, &v); err != nil {
		return err
	}

	*r = VideoRecord(v.plain)
	if r.RawStatus == "" {
		r.RawStatus = v.Status
	}

	return nil
}

func (r VideoRecord) DurationString() string {
	return (time.Duration(r.Duration) * time.Second).String()
}

func (r VideoRecord) IsPending() bool {
	return r.RawStatus == StatusPending
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func (p Pagination) HasPrevious() bool { return p.Page > 1 }
func (p Pagination) HasNext() bool     { return p.Page < p.Pages }

type Statistics struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Selected   int `json:"selected"`
	Processing int `json:"processing"`
	Processed  int `json:"processed"`
	Skipped    int `json:"skipped"`
}

type ProcessingOptions struct {
	UseFuzzyMatching bool     `json:"use_fuzzy_matching" formam:"use_fuzzy_matching"`
	FuzzyThreshold   float64  `json:"fuzzy_threshold" formam:"fuzzy_threshold"`
	EnableSentiment  bool     `json:"enable_sentiment" formam:"enable_sentiment"`
	Languages        []string `json:"languages" formam:"languages"`
}

const DefaultFuzzyThreshold = 0.8

var DefaultLanguages = []string{"mr", "hi", "en"}

func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{
		UseFuzzyMatching: true,
		FuzzyThreshold:   DefaultFuzzyThreshold,
		EnableSentiment:  true,
		Languages:        append([]string(nil), DefaultLanguages...),
	}
}

func (o ProcessingOptions) Valid() bool {
	return o.FuzzyThreshold >= 0 && o.FuzzyThreshold <= 1
}

// Mention is one keyword match found in a processed video's transcript.
type Mention struct {
	ID              int        `json:"id"`
	VideoID         string     `json:"video_id"`
	Keyword         string     `json:"keyword"`
	MatchedText     string     `json:"matched_text"`
	MatchType       string     `json:"match_type"`
	ConfidenceScore float64    `json:"confidence_score"`
	StartTime       float64    `json:"start_time"`
	EndTime         float64    `json:"end_time"`
	Context         string     `json:"context,omitempty"`
	SentimentLabel  string     `json:"sentiment_label,omitempty"`
	SentimentScore  float64    `json:"sentiment_score,omitempty"`
	Language        string     `json:"language,omitempty"`
	DetectedAt      *time.Time `json:"detected_at,omitempty"`
}

func (m Mention) Timestamp() string {
	return (time.Duration(m.StartTime*1000) * time.Millisecond).Truncate(time.Second).String()
}

// Clip is a generated excerpt around a mention.
type Clip struct {
	ID        int        `json:"id"`
	VideoID   string     `json:"video_id"`
	MentionID *int       `json:"mention_id,omitempty"`
	Title     string     `json:"title"`
	StartTime float64    `json:"start_time"`
	EndTime   float64    `json:"end_time"`
	Status    string     `json:"raw_status"`
	URL       string     `json:"url,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type TranscriptAvailability struct {
	VideoID           string  `json:"video_id"`
	Available         bool    `json:"transcript_available"`
	AvailableLanguage string  `json:"available_language,omitempty"`
	DetectionMethod   string  `json:"detection_method,omitempty"`
	ConfidenceScore   float64 `json:"confidence_score,omitempty"`
	Error             string  `json:"error,omitempty"`
}

// Listing is one page of the catalog plus the service's aggregate counts.
type Listing struct {
	Videos     []VideoRecord `json:"videos"`
	Pagination Pagination    `json:"pagination"`
	Statistics Statistics    `json:"statistics"`
}
