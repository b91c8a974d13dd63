// Package seed loads demo users and contracts from a YAML fixture file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/betarena/market-engine/internal/betting"
	"github.com/betarena/market-engine/internal/model"
)

// File is the fixture layout.
type File struct {
	Users     []User     `yaml:"users"`
	Contracts []Contract `yaml:"contracts"`
}

// User is one seeded user.
type User struct {
	Username string `yaml:"username"`
}

// Contract is one seeded contract. Creator names a user from the same
// file or one already stored, and may be empty.
type Contract struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Creator     string `yaml:"creator"`
}

// Creator is the subset of the betting service the seeder needs.
type Creator interface {
	CreateUser(ctx context.Context, req betting.CreateUserRequest) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CreateContract(ctx context.Context, req betting.CreateContractRequest) (*model.Contract, error)
}

// Load reads a fixture file and expands ${VAR} environment references.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}
	return &f, nil
}

// Result counts what Apply created and skipped.
type Result struct {
	UsersCreated     int
	ContractsCreated int
	Skipped          int
}

// Apply creates every user, then every contract. Entries that already
// exist are skipped, so seeding a populated store is a no-op.
func Apply(ctx context.Context, svc Creator, f *File) (Result, error) {
	var res Result
	ids := make(map[string]string, len(f.Users))

	for _, u := range f.Users {
		created, err := svc.CreateUser(ctx, betting.CreateUserRequest{Username: u.Username})
		switch {
		case errors.Is(err, model.ErrDuplicate):
			res.Skipped++
			continue
		case err != nil:
			return res, fmt.Errorf("seed user %q: %w", u.Username, err)
		}
		ids[created.Username] = created.ID
		res.UsersCreated++
	}

	loaded := false
	for _, c := range f.Contracts {
		creatorID, ok := ids[c.Creator]
		if !ok && c.Creator != "" && !loaded {
			// Skipped users were created by an earlier run.
			users, err := svc.ListUsers(ctx)
			if err != nil {
				return res, fmt.Errorf("seed contract %q: list users: %w", c.Title, err)
			}
			for _, u := range users {
				if _, seen := ids[u.Username]; !seen {
					ids[u.Username] = u.ID
				}
			}
			loaded = true
			creatorID = ids[c.Creator]
		}
		_, err := svc.CreateContract(ctx, betting.CreateContractRequest{
			Title:       c.Title,
			Description: c.Description,
			Category:    c.Category,
			CreatorID:   creatorID,
		})
		switch {
		case errors.Is(err, model.ErrDuplicate):
			res.Skipped++
			continue
		case err != nil:
			return res, fmt.Errorf("seed contract %q: %w", c.Title, err)
		}
		res.ContractsCreated++
	}

	slog.Info("seed applied",
		"users", res.UsersCreated,
		"contracts", res.ContractsCreated,
		"skipped", res.Skipped,
	)
	return res, nil
}

// LoadAndApply is Load followed by Apply.
func LoadAndApply(ctx context.Context, svc Creator, path string) (Result, error) {
	f, err := Load(path)
	if err != nil {
		return Result{}, err
	}
	return Apply(ctx, svc, f)
}
