package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/store"
)

func (d *DB) CreateHarvestRecord(ctx context.Context, create *store.HarvestRecord) (*store.HarvestRecord, error) {
	stmt := `
		INSERT INTO harvest_record (count, weight, date, recorded_ts)
		VALUES (` + placeholders(4) + `)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.Count,
		create.Weight,
		create.Date,
		create.RecordedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create harvest record")
	}
	return create, nil
}

func (d *DB) ListHarvestRecords(ctx context.Context, find *store.FindHarvestRecord) ([]*store.HarvestRecord, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.Year != nil {
		where, args = append(where, "date LIKE "+placeholder(len(args)+1)), append(args, fmt.Sprintf("%04d-%%", *find.Year))
	}

	query := `
		SELECT id, count, weight, date, recorded_ts
		FROM harvest_record
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY date ASC, id ASC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list harvest records")
	}
	defer rows.Close()

	list := []*store.HarvestRecord{}
	for rows.Next() {
		var record store.HarvestRecord
		if err := rows.Scan(
			&record.ID,
			&record.Count,
			&record.Weight,
			&record.Date,
			&record.RecordedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan harvest record")
		}
		list = append(list, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
