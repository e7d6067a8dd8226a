package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"conversation-tracker/internal/domain"
)

// ResolveWindow computes the read window for a conversation. With
// currentOnly false this is the unbounded full history. Otherwise it is the
// half-open interval starting at the newest session_started marker
// (inclusive); with no marker the session window is unbounded but still
// excludes markers. When several markers share the newest timestamp any one
// of them may define the bound.
func (c *Client) ResolveWindow(ctx context.Context, senderID string, currentOnly bool) (domain.SessionWindow, error) {
	if !currentOnly {
		return domain.FullHistory(), nil
	}

	q := eventQuery{
		partitionKey: convPK(senderID),
		typeEquals:   domain.TypeSessionStarted,
		descending:   true,
	}
	in, err := q.build(c.tableName)
	if err != nil {
		return domain.SessionWindow{}, err
	}

	// Filters apply after the key read, so a page can come back empty with
	// more pages behind it. Walk pages until the first (newest) marker.
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return domain.SessionWindow{}, fmt.Errorf("repository: ResolveWindow query: %w", err)
		}
		if len(out.Items) > 0 {
			ts, err := numberAttr(out.Items[0], "event_timestamp")
			if err != nil {
				return domain.SessionWindow{}, fmt.Errorf("repository: ResolveWindow: %w", err)
			}
			return domain.SessionSince(ts), nil
		}
		if len(out.LastEvaluatedKey) == 0 {
			return domain.UnboundedSession(), nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// StoredEvents reads the conversation's events inside the window, sorted
// ascending by timestamp. It returns ErrNotFound when the window holds no
// events at all; callers rely on that to tell a missing conversation from
// a stored-but-quiet one.
func (c *Client) StoredEvents(ctx context.Context, senderID string, window domain.SessionWindow) ([]domain.Event, error) {
	return c.storedEventsByPK(ctx, convPK(senderID), window)
}

func (c *Client) storedEventsByPK(ctx context.Context, pk string, window domain.SessionWindow) ([]domain.Event, error) {
	q := eventQuery{partitionKey: pk, window: window}
	in, err := q.build(c.tableName)
	if err != nil {
		return nil, err
	}

	items, err := c.queryAll(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: StoredEvents query: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}

	events := make([]domain.Event, 0, len(items))
	for _, item := range items {
		ev, err := parseEventItem(item)
		if err != nil {
			return nil, fmt.Errorf("repository: StoredEvents: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// storedEventCount returns how many events are durable for the key across
// all sessions. A missing conversation counts as zero.
func (c *Client) storedEventCount(ctx context.Context, senderID string) (int, error) {
	events, err := c.StoredEvents(ctx, senderID, domain.FullHistory())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return len(events), nil
}

func numberAttr(item map[string]types.AttributeValue, key string) (float64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return f, nil
}
