// ABOUTME: Minimal echo agent for exercising a mesh hub end to end.
// ABOUTME: Usage: mesh-agent [-addr http://localhost:8080] [-secret S] [-name "Echo Agent"]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/2389/agent-mesh/internal/client"
	"github.com/2389/agent-mesh/internal/store"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "mesh hub base URL")
	secret := flag.String("secret", os.Getenv("MESH_SECRET"), "shared secret (or MESH_SECRET)")
	name := flag.String("name", "Echo Agent", "agent display name")
	poll := flag.Duration("poll", 2*time.Second, "inbox poll interval")
	flag.Parse()

	if *secret == "" {
		log.Fatal("a shared secret is required (-secret or MESH_SECRET)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, *addr, *secret, *name, *poll); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, addr, secret, name string, poll time.Duration) error {
	c := client.New(addr, secret)

	res, err := c.Register(ctx, client.RegisterRequest{
		Name:         name,
		Capabilities: []string{"chat", "echo"},
		Skills:       []client.SkillSpec{{Name: "echo", Description: "echoes the payload back"}},
	})
	if err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	id := res.Agent.ID
	fmt.Fprintf(os.Stderr, "registered as %s (new: %v)\n", id, res.IsNewRegistration)

	events, err := c.StreamEvents(ctx, id, "new_message", "broadcast", "group_broadcast")
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	go func() {
		for evt := range events {
			log.Printf("event: %s %v", evt.Type, evt.Payload)
		}
	}()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()
	inbox := time.NewTicker(poll)
	defer inbox.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-heartbeat.C:
			if err := c.Heartbeat(ctx, id); err != nil {
				log.Printf("heartbeat failed: %v", err)
			}

		case <-inbox.C:
			msgs, err := c.Messages(ctx, id, client.MessageFilter{UnreadOnly: true})
			if err != nil {
				log.Printf("inbox poll failed: %v", err)
				continue
			}
			for _, msg := range msgs {
				if err := handleMessage(ctx, c, id, msg); err != nil {
					log.Printf("handling message %s: %v", msg.ID, err)
				}
			}
		}
	}
}

// handleMessage walks one message through the delivery lifecycle and echoes
// direct messages back to their sender.
func handleMessage(ctx context.Context, c *client.Client, id string, msg client.Message) error {
	log.Printf("received [%s] from %s: %s", msg.Type, msg.From, msg.Content)

	if err := c.MarkRead(ctx, msg.ID); err != nil {
		return err
	}

	// Group and mesh broadcasts arrive pre-delivered; only direct sends
	// need walking through the lifecycle.
	if msg.Status == store.StatusPending {
		for _, status := range []string{store.StatusDelivered, store.StatusProcessing} {
			if err := c.UpdateStatus(ctx, msg.ID, status, ""); err != nil {
				return err
			}
		}
	}

	if msg.Type == store.MessageTypeDirect {
		reply := "echo: " + msg.Content
		if _, err := c.Send(ctx, client.SendRequest{From: id, To: msg.From, Content: reply}); err != nil {
			return err
		}
	}

	if msg.Status == store.StatusPending {
		return c.UpdateStatus(ctx, msg.ID, store.StatusCompleted, "")
	}
	return nil
}
