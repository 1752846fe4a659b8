package notify

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Sender is the part of a discordgo session the effector needs
type Sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DefaultMaxRetryDuration bounds how long a failing notification is retried
const DefaultMaxRetryDuration = 10 * time.Minute

// DiscordEffector forwards new notifications to a Discord channel
type DiscordEffector struct {
	sender           Sender
	channelID        string
	outbox           *Outbox
	pollInterval     time.Duration
	maxRetryDuration time.Duration

	mu         sync.Mutex
	firstFails map[string]time.Time
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewDiscordEffector creates an effector posting to channelID
func NewDiscordEffector(sender Sender, channelID string, outbox *Outbox) *DiscordEffector {
	return &DiscordEffector{
		sender:           sender,
		channelID:        channelID,
		outbox:           outbox,
		pollInterval:     2 * time.Second,
		maxRetryDuration: DefaultMaxRetryDuration,
		firstFails:       make(map[string]time.Time),
		stopChan:         make(chan struct{}),
	}
}

// Start begins polling the outbox
func (e *DiscordEffector) Start() {
	go e.pollLoop()
	log.Println("[discord-effector] Started")
}

// Stop halts the effector
func (e *DiscordEffector) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
}

func (e *DiscordEffector) pollLoop() {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.processPending(time.Now())
		}
	}
}

// processPending sends every unforwarded notification once
func (e *DiscordEffector) processPending(now time.Time) {
	for _, n := range e.outbox.Unforwarded() {
		err := e.send(n)
		if err == nil {
			e.outbox.MarkForwarded(n.ID)
			e.clearFailure(n.ID)
			log.Printf("[discord-effector] Forwarded notification %s (%s)", n.ID, n.Kind)
			continue
		}

		if !e.handleError(n.ID, err, now) {
			e.outbox.MarkFailed(n.ID)
			log.Printf("[discord-effector] Giving up on notification %s: %v", n.ID, err)
		} else {
			log.Printf("[discord-effector] Failed notification %s, will retry: %v", n.ID, err)
		}
	}
}

func (e *DiscordEffector) send(n Notification) error {
	if e.sender == nil {
		return fmt.Errorf("no discord session")
	}
	content := fmt.Sprintf("**%s**\n%s", n.Title, n.Message)
	_, err := e.sender.ChannelMessageSend(e.channelID, content)
	return err
}

// handleError reports whether the notification should be retried
func (e *DiscordEffector) handleError(id string, err error, now time.Time) bool {
	if isNonRetryableError(err) {
		e.clearFailure(id)
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	first, ok := e.firstFails[id]
	if !ok {
		e.firstFails[id] = now
		return true
	}
	if now.Sub(first) > e.maxRetryDuration {
		delete(e.firstFails, id)
		return false
	}
	return true
}

func (e *DiscordEffector) clearFailure(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.firstFails, id)
}

// isNonRetryableError treats Discord 4xx responses as permanent
func isNonRetryableError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code >= 400 && code < 500
	}
	return false
}
