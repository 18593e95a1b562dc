package metrics

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const startKey = "metrics:start_time"

// RegisterGormCallbacks times every gorm statement into db_query_duration_seconds.
func RegisterGormCallbacks(db *gorm.DB, m *Metrics) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := tx.Statement.Table
			if table == "" {
				table = "raw"
			}
			failed := tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound)
			m.RecordDBQuery(operation, table, time.Since(start), failed)
		}
	}

	cb := db.Callback()
	// 每类语句前后各挂一个回调
	if err := cb.Create().Before("gorm:create").Register("metrics:before_create", before); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("metrics:after_create", after("create")); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("metrics:before_query", before); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("metrics:after_query", after("query")); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("metrics:before_update", before); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("metrics:after_update", after("update")); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("metrics:before_delete", before); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("metrics:after_delete", after("delete")); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("metrics:before_row", before); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("metrics:after_row", after("row")); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("metrics:before_raw", before); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("metrics:after_raw", after("raw"))
}
