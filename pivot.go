package relate

import (
	"context"
	"sort"
	"strings"
	"time"
)

// SyncResult reports the pivot-row changes made by Sync.
type SyncResult struct {
	Attached []any
	Detached []any
	Updated  []any
}

// Attach inserts pivot rows linking the parent to each given related key,
// all carrying the same extra attributes. Keys already attached produce
// duplicate-row inserts unless the pivot table constrains them.
func (r *BelongsToManyRelation) Attach(ctx context.Context, ids []any, attrs map[string]any) error {
	for _, id := range ids {
		if err := r.attachOne(ctx, id, attrs); err != nil {
			return err
		}
	}
	return nil
}

func (r *BelongsToManyRelation) attachOne(ctx context.Context, id any, attrs map[string]any) error {
	values := map[string]any{
		r.opts.foreignPivotKey: r.parent.Get(r.opts.parentKey),
		r.opts.relatedPivotKey: id,
	}
	if r.morphTypeColumn != "" {
		values[r.morphTypeColumn] = r.morphClass
	}
	for c, v := range attrs {
		values[c] = v
	}
	if r.opts.timestamps {
		created, updated := r.opts.timestampColumns()
		now := time.Now().UTC()
		if _, ok := values[created]; !ok {
			values[created] = now
		}
		if _, ok := values[updated]; !ok {
			values[updated] = now
		}
	}

	columns := make([]string, 0, len(values))
	for c := range values {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	args := make([]any, 0, len(columns))
	for _, c := range columns {
		args = append(args, values[c])
	}

	sb := GetStringBuilder()
	defer PutStringBuilder(sb)
	sb.WriteString("INSERT INTO ")
	sb.WriteString(r.opts.table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(") VALUES (")
	writePlaceholders(sb, len(columns))
	sb.WriteString(")")

	_, err := r.query.conn.Exec(ctx, sb.String(), args...)
	return err
}

// Detach removes the pivot rows for the given related keys, or every pivot
// row of the parent when ids is empty. Returns the number of rows removed.
func (r *BelongsToManyRelation) Detach(ctx context.Context, ids ...any) (int64, error) {
	sb := GetStringBuilder()
	defer PutStringBuilder(sb)
	sb.WriteString("DELETE FROM ")
	sb.WriteString(r.opts.table)
	sb.WriteString(" WHERE ")
	sb.WriteString(r.opts.foreignPivotKey)
	sb.WriteString(" = ?")
	args := []any{r.parent.Get(r.opts.parentKey)}

	if r.morphTypeColumn != "" {
		sb.WriteString(" AND ")
		sb.WriteString(r.morphTypeColumn)
		sb.WriteString(" = ?")
		args = append(args, r.morphClass)
	}
	if len(ids) > 0 {
		sb.WriteString(" AND ")
		sb.WriteString(r.opts.relatedPivotKey)
		sb.WriteString(" IN (")
		writePlaceholders(sb, len(ids))
		sb.WriteString(")")
		args = append(args, ids...)
	}

	res, err := r.query.conn.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Sync reconciles the parent's pivot rows against the desired set: keys
// present but not desired are detached, desired but absent are attached,
// and keys on both sides get their pivot attributes updated when the
// desired entry carries any.
func (r *BelongsToManyRelation) Sync(ctx context.Context, desired map[any]map[string]any) (*SyncResult, error) {
	current, err := r.currentPivotKeys(ctx)
	if err != nil {
		return nil, err
	}

	kt := r.related.keyType
	desiredByKey := make(map[string]any, len(desired))
	desiredAttrs := make(map[string]map[string]any, len(desired))
	for id, attrs := range desired {
		k, ok := dictionaryKey(id, kt)
		if !ok {
			continue
		}
		desiredByKey[k] = id
		desiredAttrs[k] = attrs
	}

	result := &SyncResult{}

	var detach []any
	for k, id := range current {
		if _, keep := desiredByKey[k]; !keep {
			detach = append(detach, id)
		}
	}
	if len(detach) > 0 {
		if _, err := r.Detach(ctx, detach...); err != nil {
			return nil, err
		}
		result.Detached = detach
	}

	for k, id := range desiredByKey {
		attrs := desiredAttrs[k]
		if _, have := current[k]; !have {
			if err := r.attachOne(ctx, id, attrs); err != nil {
				return nil, err
			}
			result.Attached = append(result.Attached, id)
			continue
		}
		// Rows kept on both sides are only touched when the desired
		// entry carries pivot attributes.
		if len(attrs) > 0 {
			if _, err := r.UpdateExistingPivot(ctx, id, attrs); err != nil {
				return nil, err
			}
			result.Updated = append(result.Updated, id)
		}
	}
	return result, nil
}

// SyncIDs is Sync without pivot attributes.
func (r *BelongsToManyRelation) SyncIDs(ctx context.Context, ids []any) (*SyncResult, error) {
	desired := make(map[any]map[string]any, len(ids))
	for _, id := range ids {
		desired[id] = nil
	}
	return r.Sync(ctx, desired)
}

// SyncWithoutDetaching attaches and updates like Sync but leaves pivot
// rows outside the desired set in place.
func (r *BelongsToManyRelation) SyncWithoutDetaching(ctx context.Context, desired map[any]map[string]any) (*SyncResult, error) {
	current, err := r.currentPivotKeys(ctx)
	if err != nil {
		return nil, err
	}

	kt := r.related.keyType
	result := &SyncResult{}
	for id, attrs := range desired {
		k, ok := dictionaryKey(id, kt)
		if !ok {
			continue
		}
		if _, have := current[k]; !have {
			if err := r.attachOne(ctx, id, attrs); err != nil {
				return nil, err
			}
			result.Attached = append(result.Attached, id)
			continue
		}
		if len(attrs) > 0 {
			if _, err := r.UpdateExistingPivot(ctx, id, attrs); err != nil {
				return nil, err
			}
			result.Updated = append(result.Updated, id)
		}
	}
	return result, nil
}

// Toggle detaches the given keys that are currently attached and attaches
// the ones that are not.
func (r *BelongsToManyRelation) Toggle(ctx context.Context, ids []any) (*SyncResult, error) {
	current, err := r.currentPivotKeys(ctx)
	if err != nil {
		return nil, err
	}
	kt := r.related.keyType
	result := &SyncResult{}
	var detach []any
	for _, id := range ids {
		k, ok := dictionaryKey(id, kt)
		if !ok {
			continue
		}
		if _, have := current[k]; have {
			detach = append(detach, id)
		} else {
			if err := r.attachOne(ctx, id, nil); err != nil {
				return nil, err
			}
			result.Attached = append(result.Attached, id)
		}
	}
	if len(detach) > 0 {
		if _, err := r.Detach(ctx, detach...); err != nil {
			return nil, err
		}
		result.Detached = detach
	}
	return result, nil
}

// UpdateExistingPivot updates the pivot attributes of one attached key.
func (r *BelongsToManyRelation) UpdateExistingPivot(ctx context.Context, id any, attrs map[string]any) (int64, error) {
	if len(attrs) == 0 {
		return 0, &InvalidArgumentError{Message: "pivot update requires at least one column"}
	}
	values := make(map[string]any, len(attrs)+1)
	for c, v := range attrs {
		values[c] = v
	}
	if r.opts.timestamps {
		_, updated := r.opts.timestampColumns()
		if _, ok := values[updated]; !ok {
			values[updated] = time.Now().UTC()
		}
	}

	columns := make([]string, 0, len(values))
	for c := range values {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	sb := GetStringBuilder()
	defer PutStringBuilder(sb)
	sb.WriteString("UPDATE ")
	sb.WriteString(r.opts.table)
	sb.WriteString(" SET ")
	var args []any
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c)
		sb.WriteString(" = ?")
		args = append(args, values[c])
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(r.opts.foreignPivotKey)
	sb.WriteString(" = ? AND ")
	sb.WriteString(r.opts.relatedPivotKey)
	sb.WriteString(" = ?")
	args = append(args, r.parent.Get(r.opts.parentKey), id)
	if r.morphTypeColumn != "" {
		sb.WriteString(" AND ")
		sb.WriteString(r.morphTypeColumn)
		sb.WriteString(" = ?")
		args = append(args, r.morphClass)
	}

	res, err := r.query.conn.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// currentPivotKeys returns the attached related keys indexed by their
// normalized dictionary form.
func (r *BelongsToManyRelation) currentPivotKeys(ctx context.Context) (map[string]any, error) {
	sb := GetStringBuilder()
	defer PutStringBuilder(sb)
	sb.WriteString("SELECT ")
	sb.WriteString(r.opts.relatedPivotKey)
	sb.WriteString(" FROM ")
	sb.WriteString(r.opts.table)
	sb.WriteString(" WHERE ")
	sb.WriteString(r.opts.foreignPivotKey)
	sb.WriteString(" = ?")
	args := []any{r.parent.Get(r.opts.parentKey)}
	if r.morphTypeColumn != "" {
		sb.WriteString(" AND ")
		sb.WriteString(r.morphTypeColumn)
		sb.WriteString(" = ?")
		args = append(args, r.morphClass)
	}

	rows, err := r.query.conn.Select(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	kt := r.related.keyType
	out := make(map[string]any, len(rows))
	for _, row := range rows {
		v := row[r.opts.relatedPivotKey]
		if k, ok := dictionaryKey(v, kt); ok {
			out[k] = v
		}
	}
	return out, nil
}
