// Command admin is the ops CLI: inspect stats, manage the sender blacklist
// and reset the daily response counter without going through the API.
package main

import (
	"context"
	"fmt"
	"os"

	"userbotgo/backend/internal/config"
	"userbotgo/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [args]

commands:
  stats                  print activity statistics
  accounts               list accounts and their status
  reset-daily            reset today's global response counter
  blacklist <user_id>    add a sender to the blacklist
  unblacklist <user_id>  remove a sender from the blacklist`)
	os.Exit(2)
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		fail(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		fail(err)
	}
	store := storage.NewStorageService(db, rdb)

	switch os.Args[1] {
	case "stats":
		stats, err := store.Stats()
		if err != nil {
			fail(err)
		}
		count, _ := store.DailyResponseCount()
		fmt.Printf("total responses:     %d\n", stats.TotalResponses)
		fmt.Printf("successful:          %d\n", stats.SuccessfulResponses)
		fmt.Printf("failed:              %d\n", stats.FailedResponses)
		fmt.Printf("today (persisted):   %d\n", stats.ResponsesToday)
		fmt.Printf("today (counter):     %d\n", count)
		fmt.Printf("success rate:        %.1f%%\n", stats.SuccessRate)

	case "accounts":
		accounts, err := store.ListAccounts()
		if err != nil {
			fail(err)
		}
		for _, a := range accounts {
			fmt.Printf("%s  %-16s %-13s %s\n", a.ID, a.Phone, a.Status, a.Username)
		}

	case "reset-daily":
		if err := store.ResetDailyResponseCount(); err != nil {
			fail(err)
		}
		fmt.Println("daily counter reset")

	case "blacklist", "unblacklist":
		if len(os.Args) < 3 {
			usage()
		}
		if err := editBlacklist(store, os.Args[2], os.Args[1] == "blacklist"); err != nil {
			fail(err)
		}

	default:
		usage()
	}
}

func editBlacklist(store *storage.Service, userID string, add bool) error {
	settings, err := store.GetSettings()
	if err != nil {
		return err
	}

	out := settings.BlacklistedUsers[:0:0]
	found := false
	for _, id := range settings.BlacklistedUsers {
		if id == userID {
			found = true
			if !add {
				continue
			}
		}
		out = append(out, id)
	}
	if add && !found {
		out = append(out, userID)
	}
	settings.BlacklistedUsers = out

	if err := store.SaveSettings(settings); err != nil {
		return err
	}
	if add {
		fmt.Printf("blacklisted %s\n", userID)
	} else {
		fmt.Printf("removed %s from blacklist\n", userID)
	}
	return nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
