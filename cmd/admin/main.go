package main

import (
	"adoptchat/backend/internal/auth"
	"adoptchat/backend/internal/config"
	"adoptchat/backend/internal/connection"
	"adoptchat/backend/internal/dispatch"
	applog "adoptchat/backend/internal/log"
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/process"
	"adoptchat/backend/internal/storage"
	"adoptchat/backend/internal/unread"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

  token <user_id>                 print an access token for the user
  promote <user_id>               grant the staff role
  delete-room <room_id>           delete a room and its whole log
  unread <user_id>                print unread counts per room
  start-process <user_id>         start the user's process cycle
  complete-step <user_id> <step>  complete the active step`

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	applog.Init(cfg.Env)

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	ctx := context.Background()

	// Redis is optional here: without it system messages are stored but not
	// pushed to connected clients.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, live fan-out disabled")
		rdb = nil
	}
	s := storage.NewStorageService(db, rdb)

	var b storage.Broadcaster
	if rdb != nil {
		b = s
	}
	dispatcher := dispatch.NewDispatcher(connection.NewOrchestrator(s), s, b, nil)
	procs := process.NewService(s, dispatcher)

	args := os.Args[2:]
	switch os.Args[1] {
	case "token":
		need(args, 1, "token <user_id>")
		user, err := s.GetUserByID(ctx, args[0])
		check(err, "load user")
		token, err := auth.GenerateAccessToken(user.ID, user.Role, cfg.JWTSecret, cfg.AccessTokenTTLMinutes)
		check(err, "sign token")
		fmt.Println(token)
	case "promote":
		need(args, 1, "promote <user_id>")
		check(s.SetUserRole(ctx, args[0], models.RoleStaff), "promote user")
		fmt.Printf("User %s is now staff.\n", args[0])
	case "delete-room":
		need(args, 1, "delete-room <room_id>")
		check(s.DeleteRoom(ctx, args[0]), "delete room")
		fmt.Printf("Room %s deleted.\n", args[0])
	case "unread":
		need(args, 1, "unread <user_id>")
		user, err := s.GetUserByID(ctx, args[0])
		check(err, "load user")
		inbox, err := unread.NewService(s).Inbox(ctx, user.ID, user.Role)
		check(err, "load inbox")
		total := 0
		for _, e := range inbox {
			fmt.Printf("%-60s %4d\n", e.RoomID, e.Unread)
			total += e.Unread
		}
		fmt.Printf("total %d\n", total)
	case "start-process":
		need(args, 1, "start-process <user_id>")
		user, err := s.GetUserByID(ctx, args[0])
		check(err, "load user")
		c, err := procs.Start(ctx, user.ID, user.Username)
		check(err, "start process")
		fmt.Printf("Cycle %d started, step %d active.\n", c.CycleNumber, c.CurrentStep)
	case "complete-step":
		need(args, 2, "complete-step <user_id> <step>")
		step, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Println("Invalid step. Please provide an integer.")
			os.Exit(1)
		}
		user, err := s.GetUserByID(ctx, args[0])
		check(err, "load user")
		c, err := procs.CompleteStep(ctx, user.ID, user.Username, step)
		check(err, "complete step")
		fmt.Printf("Cycle %d, step %d active.\n", c.CycleNumber, c.CurrentStep)
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

func need(args []string, n int, form string) {
	if len(args) != n {
		fmt.Println("Usage: admin " + form)
		os.Exit(1)
	}
}

func check(err error, what string) {
	if err != nil {
		log.Fatal().Err(err).Msg(what)
	}
}
