//go:build integration

package vibechat_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	vibechat "github.com/vibechat-dev/vibechat-go"
)

// These tests run against a live backend. Point VIBECHAT_BASE_URL at one and
// run with -tags integration.

func baseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("VIBECHAT_BASE_URL")
	if url == "" {
		t.Skip("VIBECHAT_BASE_URL not set; skipping integration tests")
	}
	return url
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestIntegrationFullSession(t *testing.T) {
	url := baseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	alice := uniqueName("it_alice")
	bob := uniqueName("it_bob")

	// Register both parties directly through the client.
	client := vibechat.NewClient(vibechat.WithBaseURL(url))
	if err := client.UpsertUser(ctx, vibechat.Identity{Username: bob, DisplayName: "Bob IT"}); err != nil {
		t.Fatalf("register peer: %v", err)
	}

	coord := vibechat.NewCoordinator(client,
		vibechat.WithPollInterval(500*time.Millisecond),
	)
	defer coord.SignOut()

	if err := coord.SignIn(ctx, alice, "Alice IT"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	if err := coord.CreateChat(ctx, bob); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	chats := coord.Chats()
	if len(chats) == 0 {
		t.Fatal("no chats after create")
	}
	coord.SelectChat(chats[0])

	if err := coord.Send(ctx, "integration hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		msgs := coord.Messages()
		if len(msgs) > 0 && msgs[len(msgs)-1].Content == "integration hello" {
			if got := coord.ClassifyAuthor(msgs[len(msgs)-1]); got != vibechat.AuthorMine {
				t.Logf("authorship still %v, waiting on profile resolution", got)
			} else {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("sent message never appeared: %+v", msgs)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func TestIntegrationUnknownParticipantRejected(t *testing.T) {
	url := baseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := vibechat.NewClient(vibechat.WithBaseURL(url))
	coord := vibechat.NewCoordinator(client)
	defer coord.SignOut()

	if err := coord.SignIn(ctx, uniqueName("it_carol"), "Carol IT"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	err := coord.CreateChat(ctx, uniqueName("it_nobody"))
	if err == nil {
		t.Fatal("expected rejection for unknown participant")
	}
	if !vibechat.IsValidation(err) {
		t.Fatalf("expected validation error, got: %v", err)
	}
	if coord.Notice() == nil {
		t.Fatal("rejection did not raise a notice")
	}
}
