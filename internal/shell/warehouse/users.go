package warehouse

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// =============================================================================
// Users Table
// =============================================================================

// User is one account row. HashedPassword never leaves the API layer.
type User struct {
	Username       string `bigquery:"username" json:"username"`
	HashedPassword string `bigquery:"hashed_password" json:"-"`
	Role           string `bigquery:"role" json:"role"`
}

// UserByUsername returns one user, or ErrUserNotFound.
func (s *Service) UserByUsername(ctx context.Context, username string) (*User, error) {
	client, err := s.bq(ctx)
	if err != nil {
		return nil, err
	}

	q := client.Query(fmt.Sprintf(
		"SELECT username, hashed_password, role FROM %s WHERE username = @username LIMIT 1",
		s.tableRef(s.cfg.UsersTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "username", Value: username}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, NewWarehouseError("UserByUsername", "user", username, err.Error(), err)
	}

	var u User
	if err := it.Next(&u); err != nil {
		if err == iterator.Done {
			return nil, NewWarehouseError("UserByUsername", "user", username, "user not found", ErrUserNotFound)
		}
		return nil, NewWarehouseError("UserByUsername", "user", username, err.Error(), err)
	}
	return &u, nil
}

// AllUsers lists every account, ordered by username. Password hashes are not
// selected.
func (s *Service) AllUsers(ctx context.Context) ([]User, error) {
	client, err := s.bq(ctx)
	if err != nil {
		return nil, err
	}

	q := client.Query(fmt.Sprintf(
		"SELECT username, role FROM %s ORDER BY username",
		s.tableRef(s.cfg.UsersTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, NewWarehouseError("AllUsers", "user", "", err.Error(), err)
	}

	var out []User
	for {
		var u User
		err := it.Next(&u)
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, NewWarehouseError("AllUsers", "user", "", err.Error(), err)
		}
		out = append(out, u)
	}
}

// CreateUser inserts a new account; ErrUserExists if the username is taken.
func (s *Service) CreateUser(ctx context.Context, user User) error {
	if _, err := s.UserByUsername(ctx, user.Username); err == nil {
		return NewWarehouseError("CreateUser", "user", user.Username, "user already exists", ErrUserExists)
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	client, err := s.bq(ctx)
	if err != nil {
		return err
	}
	ins := client.Dataset(s.cfg.Dataset).Table(s.cfg.UsersTable).Inserter()
	if err := ins.Put(ctx, user); err != nil {
		return NewWarehouseError("CreateUser", "user", user.Username, err.Error(), err)
	}
	s.logger.Info("created user", "username", user.Username, "role", user.Role)
	return nil
}

// UpdatePassword replaces a user's password hash; ErrUserNotFound if absent.
func (s *Service) UpdatePassword(ctx context.Context, username, newHash string) error {
	if _, err := s.UserByUsername(ctx, username); err != nil {
		return err
	}

	client, err := s.bq(ctx)
	if err != nil {
		return err
	}
	q := client.Query(fmt.Sprintf(
		"UPDATE %s SET hashed_password = @new_hash WHERE username = @username",
		s.tableRef(s.cfg.UsersTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "new_hash", Value: newHash},
		{Name: "username", Value: username},
	}
	if err := runDML(ctx, q); err != nil {
		return NewWarehouseError("UpdatePassword", "user", username, err.Error(), err)
	}
	s.logger.Info("updated password", "username", username)
	return nil
}

// DeleteUser removes an account; ErrUserNotFound if absent.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	if _, err := s.UserByUsername(ctx, username); err != nil {
		return err
	}

	client, err := s.bq(ctx)
	if err != nil {
		return err
	}
	q := client.Query(fmt.Sprintf(
		"DELETE FROM %s WHERE username = @username",
		s.tableRef(s.cfg.UsersTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "username", Value: username}}
	if err := runDML(ctx, q); err != nil {
		return NewWarehouseError("DeleteUser", "user", username, err.Error(), err)
	}
	s.logger.Info("deleted user", "username", username)
	return nil
}

// runDML executes a mutation query to completion.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}
