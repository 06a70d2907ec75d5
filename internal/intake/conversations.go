package intake

import (
	"context"
	"time"

	"github.com/rahul/homebot/internal/store"
)

// DialogStore is implemented by *store.Store.
type DialogStore interface {
	SaveDialog(ctx context.Context, st store.DialogState) error
	LoadDialog(ctx context.Context, ownerID string) (store.DialogState, bool, error)
	ClearDialog(ctx context.Context, ownerID string) error
}

// DefaultContextTTL is how long an unanswered question stays open.
const DefaultContextTTL = 30 * time.Minute

// Conversations keeps one Context per owner across restarts.
type Conversations struct {
	store DialogStore
	ttl   time.Duration
	now   func() time.Time
}

func NewConversations(st DialogStore, ttl time.Duration) *Conversations {
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	return &Conversations{store: st, ttl: ttl, now: time.Now}
}

// Get returns the owner's context, or an ExpectNone context when nothing is
// stored or the stored question has expired.
func (c *Conversations) Get(ctx context.Context, owner string) (Context, error) {
	empty := Context{Owner: owner, Expect: ExpectNone}
	st, ok, err := c.store.LoadDialog(ctx, owner)
	if err != nil || !ok {
		return empty, err
	}
	if c.now().Sub(st.UpdatedAt) > c.ttl || !Expect(st.Expect).valid() {
		return empty, nil
	}
	return Context{Owner: owner, Expect: Expect(st.Expect), Subject: st.Subject}, nil
}

// Set stores c. Setting ExpectNone clears the owner's context.
func (c *Conversations) Set(ctx context.Context, cc Context) error {
	if cc.Expect == ExpectNone || cc.Expect == "" {
		return c.store.ClearDialog(ctx, cc.Owner)
	}
	return c.store.SaveDialog(ctx, store.DialogState{
		OwnerID: cc.Owner,
		Expect:  string(cc.Expect),
		Subject: cc.Subject,
	})
}

func (c *Conversations) Clear(ctx context.Context, owner string) error {
	return c.store.ClearDialog(ctx, owner)
}
