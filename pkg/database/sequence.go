package database

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

// NextSequence increments the named counter and returns the new value.
// The UPDATE takes the row lock, so concurrent callers never observe the same value.
func (c *Client) NextSequence(ctx context.Context, name string) (int64, error) {
	var next int64
	err := c.RunInTx(ctx, func(ctx context.Context) error {
		b := c.SQL()
		res, err := c.Exec(ctx, b.Update("sequences").Add("value", 1).Where(entsql.EQ("name", name)))
		if err != nil {
			return fmt.Errorf("increment sequence %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := c.Exec(ctx, b.Insert("sequences").Columns("name", "value").Values(name, 1)); err != nil {
				return fmt.Errorf("create sequence %s: %w", name, err)
			}
			next = 1
			return nil
		}
		return c.QueryRow(ctx, b.Select("value").From(b.Table("sequences")).Where(entsql.EQ("name", name))).Scan(&next)
	})
	return next, err
}
