package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/battlehub/internal/notify"
	"github.com/park285/battlehub/internal/roomclient"
)

func main() {
	baseURL := os.Getenv("BATTLEHUB_URL")
	token := os.Getenv("BATTLEHUB_TOKEN")
	roomID := os.Getenv("ROOM_ID")

	if baseURL == "" {
		log.Fatal("BATTLEHUB_URL is required")
	}
	if roomID == "" {
		roomID = "probe-" + time.Now().Format("150405")
	}

	client := roomclient.New(baseURL,
		roomclient.WithToken(token),
		roomclient.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		log.Fatalf("/healthz error: %v", err)
	}
	log.Println("/healthz ok")

	if token == "" {
		log.Println("BATTLEHUB_TOKEN not set; skipping join")
	} else {
		jr, err := client.Join(ctx, roomID)
		if err != nil {
			log.Printf("join error (status=%d): %v", roomclient.StatusOf(err), err)
		} else {
			log.Printf("joined room=%s host=%v players=%d", jr.Room.RoomID, jr.IsHost, len(jr.Room.Players))
		}
	}

	r, err := client.Get(ctx, roomID)
	if err != nil {
		log.Printf("get error (status=%d): %v", roomclient.StatusOf(err), err)
	} else {
		log.Printf("room=%s owner=%s started=%v completed=%v players=%d", r.RoomID, r.OwnerID, r.Started, r.Completed(), len(r.Players))
	}

	stream := client.Events(roomID, 5)
	stream.OnStateChange(func(s roomclient.StreamState) {
		log.Printf("events state: %s", s)
	})
	stream.OnEvent(func(ev notify.Event) {
		players := 0
		if ev.Room != nil {
			players = len(ev.Room.Players)
		}
		fmt.Printf("event type=%s room=%s players=%d at=%s\n", ev.Type, ev.RoomID, players, ev.At.Format(time.RFC3339))
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := stream.Connect(cctx); err != nil {
		log.Printf("events connect error: %v", err)
		return
	}

	// observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	_ = stream.Close(closeCtx)
}
