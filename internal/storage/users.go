package storage

import (
	"context"
	"fmt"

	"ms-passbot/internal/models"
)

// AddUser stores the user on first contact. It reports whether the user is new.
func (d *DB) AddUser(ctx context.Context, user models.User) (bool, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = d.now()
	}
	res, err := d.Bun.NewInsert().
		Model(&user).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("insert user %d: %w", user.UserID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListUserIDs returns every known user id, oldest first.
func (d *DB) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := d.Bun.NewSelect().
		Model((*models.User)(nil)).
		Column("user_id").
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return ids, nil
}

func (d *DB) CountUsers(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().Model((*models.User)(nil)).Count(ctx)
}
