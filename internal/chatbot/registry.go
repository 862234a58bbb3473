package chatbot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"heimdall/internal/clock"
	"heimdall/internal/config"
	"heimdall/internal/domain"
)

// timeResolution truncates subscription timestamps written to the config file.
const timeResolution = time.Second

// ErrUnknownSubscriber is returned by operator actions on an absent chat id.
var ErrUnknownSubscriber = errors.New("unknown subscriber")

// Persister stores the full subscriber list.
type Persister interface {
	SaveSubscribers(subscribers []domain.Subscriber) error
}

// PersistFunc adapts a function to Persister.
type PersistFunc func(subscribers []domain.Subscriber) error

// SaveSubscribers calls f.
func (f PersistFunc) SaveSubscribers(subscribers []domain.Subscriber) error {
	return f(subscribers)
}

// ConfigPersister writes subscribers back into the application config file.
func ConfigPersister(path string) Persister {
	return PersistFunc(func(subscribers []domain.Subscriber) error {
		return config.SaveSubscribers(path, subscribers)
	})
}

// Registry is the single source of truth for broadcast recipients.
// Params: mutex-guarded ordered list; reads return copies.
// Returns: subscriber operations shared by the chat loop, operators, and the Telegram sender.
type Registry struct {
	mu          sync.Mutex
	subscribers []domain.Subscriber
	persister   Persister
	autoApprove bool
	clock       clock.Clock
}

// NewRegistry builds a registry from the persisted list.
// Params: initial subscribers, persister (nil keeps the list in memory), approval policy, and clock.
// Returns: ready registry.
func NewRegistry(initial []domain.Subscriber, persister Persister, autoApprove bool, clk clock.Clock) *Registry {
	return &Registry{
		subscribers: dedupe(initial),
		persister:   persister,
		autoApprove: autoApprove,
		clock:       clock.OrReal(clk),
	}
}

// Subscribe adds a chat or leaves an existing entry untouched.
// Params: chat id and display metadata from the inbound message.
// Returns: stored subscriber, whether it was created, and persistence error.
func (r *Registry) Subscribe(chatID int64, username, firstName string) (domain.Subscriber, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx := r.indexLocked(chatID); idx >= 0 {
		return r.subscribers[idx], false, nil
	}
	sub := domain.Subscriber{
		ChatID:       chatID,
		Username:     username,
		FirstName:    firstName,
		SubscribedAt: r.clock.Now().Truncate(timeResolution),
		Approved:     r.autoApprove,
	}
	next := append(r.copyLocked(), sub)
	if err := r.commitLocked(next); err != nil {
		return domain.Subscriber{}, false, err
	}
	return sub, true, nil
}

// Unsubscribe removes a chat on its own request.
// Returns: whether an entry was removed and persistence error.
func (r *Registry) Unsubscribe(chatID int64) (bool, error) {
	_, err := r.Remove(chatID)
	if errors.Is(err, ErrUnknownSubscriber) {
		return false, nil
	}
	return err == nil, err
}

// Lookup returns the entry for chatID.
func (r *Registry) Lookup(chatID int64) (domain.Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexLocked(chatID); idx >= 0 {
		return r.subscribers[idx], true
	}
	return domain.Subscriber{}, false
}

// Approve marks a subscriber as a broadcast recipient.
func (r *Registry) Approve(chatID int64) (domain.Subscriber, error) {
	return r.setApproved(chatID, true)
}

// Disapprove puts a subscriber back on hold.
func (r *Registry) Disapprove(chatID int64) (domain.Subscriber, error) {
	return r.setApproved(chatID, false)
}

func (r *Registry) setApproved(chatID int64, approved bool) (domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(chatID)
	if idx < 0 {
		return domain.Subscriber{}, fmt.Errorf("%w: %d", ErrUnknownSubscriber, chatID)
	}
	next := r.copyLocked()
	next[idx].Approved = approved
	if err := r.commitLocked(next); err != nil {
		return domain.Subscriber{}, err
	}
	return next[idx], nil
}

// Remove deletes a subscriber.
// Returns: removed entry, ErrUnknownSubscriber, or persistence error.
func (r *Registry) Remove(chatID int64) (domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(chatID)
	if idx < 0 {
		return domain.Subscriber{}, fmt.Errorf("%w: %d", ErrUnknownSubscriber, chatID)
	}
	removed := r.subscribers[idx]
	next := r.copyLocked()
	next = append(next[:idx], next[idx+1:]...)
	if err := r.commitLocked(next); err != nil {
		return domain.Subscriber{}, err
	}
	return removed, nil
}

// List returns every subscriber in subscription order.
func (r *Registry) List() []domain.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

// Approved returns approved subscribers only.
func (r *Registry) Approved() []domain.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		if sub.Approved {
			out = append(out, sub)
		}
	}
	return out
}

// ApprovedChatIDs returns broadcast targets; pending chats are never included.
func (r *Registry) ApprovedChatIDs() []int64 {
	approved := r.Approved()
	out := make([]int64, 0, len(approved))
	for _, sub := range approved {
		out = append(out, sub.ChatID)
	}
	return out
}

// Counts returns total and approved subscriber counts.
func (r *Registry) Counts() (total, approved int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscribers {
		if sub.Approved {
			approved++
		}
	}
	return len(r.subscribers), approved
}

// ReloadFrom re-reads the persisted list and swaps it in under the registry lock.
// Params: load returns the persisted subscribers and current approval policy.
// Returns: the load error; the current list stays on failure.
func (r *Registry) ReloadFrom(load func() ([]domain.Subscriber, bool, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	subscribers, autoApprove, err := load()
	if err != nil {
		return err
	}
	r.subscribers = dedupe(subscribers)
	r.autoApprove = autoApprove
	return nil
}

// commitLocked persists next and swaps it in; the old list stays on failure.
func (r *Registry) commitLocked(next []domain.Subscriber) error {
	if r.persister != nil {
		if err := r.persister.SaveSubscribers(next); err != nil {
			return fmt.Errorf("persist subscribers: %w", err)
		}
	}
	r.subscribers = next
	return nil
}

func (r *Registry) indexLocked(chatID int64) int {
	for i, sub := range r.subscribers {
		if sub.ChatID == chatID {
			return i
		}
	}
	return -1
}

func (r *Registry) copyLocked() []domain.Subscriber {
	out := make([]domain.Subscriber, len(r.subscribers))
	copy(out, r.subscribers)
	return out
}

// dedupe keeps the first entry per chat id.
func dedupe(in []domain.Subscriber) []domain.Subscriber {
	seen := make(map[int64]struct{}, len(in))
	out := make([]domain.Subscriber, 0, len(in))
	for _, sub := range in {
		if _, dup := seen[sub.ChatID]; dup {
			continue
		}
		seen[sub.ChatID] = struct{}{}
		out = append(out, sub)
	}
	return out
}
