package ytutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVideoID(t *testing.T) {
	type testCase struct {
		input string
		id    string
		ok    bool
	}

	for _, tc := range []testCase{
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42", "dQw4w9WgXcQ", true},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/live/dQw4w9WgXcQ?si=x", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch", "", false},
		{"https://www.youtube.com/channel/UCabc", "", false},
		{"https://example.com/watch?v=dQw4w9WgXcQ", "", false},
		{"short", "", false},
	} {
		t.Run(tc.input, func(t *testing.T) {
			a := assert.New(t)

			id, err := ExtractVideoID(tc.input)
			if !tc.ok {
				a.Error(err)
				return
			}

			a.NoError(err)
			a.Equal(tc.id, id)
		})
	}
}

func TestExtractVideoIDs(t *testing.T) {
	a := assert.New(t)

	ids, rejected := ExtractVideoIDs("dQw4w9WgXcQ, https://youtu.be/9bZkp7q19f0\nnope dQw4w9WgXcQ")
	a.Equal([]string{"dQw4w9WgXcQ", "9bZkp7q19f0"}, ids)
	a.Equal([]string{"nope"}, rejected)
}
