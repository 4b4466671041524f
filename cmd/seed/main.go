// Command seed mints development tokens and opens a demo room so the API can
// be exercised by hand.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"lobbyd/internal/app"
	"lobbyd/internal/config"
	"lobbyd/internal/model"

	"github.com/sirupsen/logrus"
)

func main() {
	users := flag.Int("users", 3, "number of demo users to mint tokens for")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	room := flag.Bool("room", true, "open a demo room hosted by the first user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	cfg.SetupLogging()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lobby, err := app.New(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect")
	}
	defer lobby.Close()

	ids := make([]string, 0, *users)
	for i := 1; i <= *users; i++ {
		id := fmt.Sprintf("user_%d", i)
		token, err := lobby.Auth.IssueToken(id, fmt.Sprintf("Player %d", i), *ttl)
		if err != nil {
			logrus.WithError(err).Fatal("failed to sign token")
		}
		ids = append(ids, id)
		fmt.Printf("%s\t%s\n", id, token)
	}

	if !*room || len(ids) == 0 {
		return
	}

	res, err := lobby.Rooms.CreateRoom(ctx, ids[0], model.RoomConfig{Name: "Demo table", MaxPlayers: 4})
	if err != nil {
		logrus.WithError(err).Fatal("failed to create demo room")
	}
	fmt.Printf("\nroom %s code %s (host %s)\n", res.Room.ID, res.Room.Code, ids[0])

	for _, id := range ids[1:] {
		joined, err := lobby.Rooms.JoinRoom(ctx, id, res.Room.Code, "")
		if err != nil {
			logrus.WithError(err).WithField("user_id", id).Warn("demo join failed")
			continue
		}
		fmt.Printf("  %s seated at %d\n", id, joined.Membership.Position)
	}
}
