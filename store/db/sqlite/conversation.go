package sqlite

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/store"
)

func (d *DB) UpsertConversation(ctx context.Context, upsert *store.Conversation) (*store.Conversation, error) {
	messages, err := json.Marshal(upsert.Messages)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal conversation messages")
	}
	if upsert.Messages == nil {
		messages = []byte("[]")
	}

	stmt := `
		INSERT INTO conversation (user_id, mode, messages, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (user_id) DO UPDATE SET
			mode = excluded.mode,
			messages = excluded.messages,
			updated_ts = excluded.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.UserID,
		upsert.Mode,
		string(messages),
		upsert.CreatedTs,
		upsert.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert conversation")
	}
	return upsert, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}

	query := `
		SELECT user_id, mode, messages, created_ts, updated_ts
		FROM conversation
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := []*store.Conversation{}
	for rows.Next() {
		var conversation store.Conversation
		var messages string
		if err := rows.Scan(
			&conversation.UserID,
			&conversation.Mode,
			&messages,
			&conversation.CreatedTs,
			&conversation.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		if err := json.Unmarshal([]byte(messages), &conversation.Messages); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal messages of conversation %s", conversation.UserID)
		}
		list = append(list, &conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
