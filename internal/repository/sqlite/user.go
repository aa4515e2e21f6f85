package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shiftline/marketplace/pkg/models"
)

func (r *SQLiteRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if u == nil {
		return 0, fmt.Errorf("user is nil")
	}

	res, err := r.conn.Exec(ctx, `INSERT INTO users (name, email, phone, role, password_hash, created) VALUES (?, ?, ?, ?, ?, ?)`,
		u.Name, u.Email, u.Phone, string(u.Role), u.PasswordHash, now())
	if err != nil {
		return 0, storeErr("create user", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, name, email, phone, role, password_hash, created FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, name, email, phone, role, password_hash, created FROM users WHERE email = ?`, email)
	return scanUser(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &role, &u.PasswordHash, &u.Created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeErr("scan user", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}
