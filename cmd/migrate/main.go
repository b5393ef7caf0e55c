package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sentinel.org/internal/auth"
	"sentinel.org/internal/ids"
	"sentinel.org/internal/migrate"
	"sentinel.org/internal/store/pg"
)

// Seeded role and group ids.
const (
	superAdminRoleID = "3"
	adminGroupID     = "7"
)

func main() {
	log.SetFlags(0)
	var (
		dsn      = flag.String("dsn", os.Getenv("SENTINEL_PG_DSN"), "PostgreSQL DSN")
		dir      = flag.String("dir", "", "Directory with sql/ and seeds/ (defaults to the embedded files)")
		username = flag.String("username", "Admin", "Username for the admin command")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or SENTINEL_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|admin]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var files fs.FS = migrate.Embedded()
	if *dir != "" {
		files = os.DirFS(*dir)
	}
	mgr := migrate.NewManager(db, files)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history, pending []string
		history, err = mgr.Status(ctx)
		if err == nil {
			pending, err = mgr.Pending(ctx)
		}
		if err == nil {
			for _, item := range history {
				fmt.Println("applied ", item)
			}
			for _, item := range pending {
				fmt.Println("pending ", item)
			}
		}
	case "admin":
		err = createAdmin(ctx, db, *username, os.Getenv("SENTINEL_ADMIN_PASSWORD"))
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// createAdmin creates or resets a super admin in the Administrators group.
func createAdmin(ctx context.Context, db *sql.DB, username, password string) error {
	if len(password) < 8 {
		return errors.New("SENTINEL_ADMIN_PASSWORD must be at least 8 characters")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	store, err := pg.New(db)
	if err != nil {
		return err
	}
	u := &auth.User{
		ID:           ids.New(),
		Username:     username,
		PasswordHash: hash,
		RoleID:       superAdminRoleID,
	}
	if err := store.UpsertUser(ctx, u, adminGroupID); err != nil {
		return err
	}
	fmt.Printf("admin %s ready (userid %s)\n", username, u.ID)
	return nil
}
