// Package journal records every triage command an operator issues, so the
// history of who selected, skipped or submitted what survives the session.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fknsrs.biz/p/sorm"
	"fknsrs.biz/p/sorm/qsorm"
	sb "fknsrs.biz/p/sqlbuilder"
	"github.com/gost/godata"

	"fknsrs.biz/p/ytmentions/internal/ctxdb"
	"fknsrs.biz/p/ytmentions/internal/godatautil"
	"fknsrs.biz/p/ytmentions/models"
)

const DefaultPageSize = 50

// Journal writes actions through the database in the context.
type Journal struct{}

func New() *Journal {
	return &Journal{}
}

func (j *Journal) Record(ctx context.Context, action *models.TriageAction) error {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		return sorm.CreateRecord(ctx, tx, action)
	}); err != nil {
		return fmt.Errorf("journal.Journal.Record: could not create action record: %w", err)
	}

	return nil
}

// Find lists actions matching an OData query, newest first unless the query
// orders them otherwise.
func Find(ctx context.Context, db sorm.Querier, q *godata.GoDataQuery) ([]models.TriageAction, error) {
	condition, err := godatautil.MakeCondition(q, models.TriageActionTable)
	if err != nil {
		return nil, fmt.Errorf("journal.Find: could not make condition: %w", err)
	}

	orders, err := godatautil.MakeOrders(q, models.TriageActionTable, sb.OrderDesc(models.TriageActionTable.C("CreatedAt")), sb.OrderDesc(models.TriageActionTable.C("ID")))
	if err != nil {
		return nil, fmt.Errorf("journal.Find: could not make orders: %w", err)
	}

	var actions []models.TriageAction
	if err := qsorm.FindWhere(
		ctx,
		db,
		&actions,
		condition,
		orders,
		godatautil.MakeOffsetLimit(q, 0, DefaultPageSize),
	); err != nil {
		return nil, fmt.Errorf("journal.Find: could not find actions: %w", err)
	}

	return actions, nil
}

// ForVideo lists the actions that touched one video.
func ForVideo(ctx context.Context, db sorm.Querier, videoID string) ([]models.TriageAction, error) {
	var actions []models.TriageAction
	if err := sorm.FindWhere(
		ctx,
		db,
		&actions,
		"where exists (select 1 from json_each(video_ids) where json_each.value = ?) order by created_at desc, id desc limit 50",
		videoID,
	); err != nil {
		return nil, fmt.Errorf("journal.ForVideo: could not find actions: %w", err)
	}

	return actions, nil
}
