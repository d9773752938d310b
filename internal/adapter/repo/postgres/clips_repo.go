package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clipforge/clipforge/internal/domain"
)

// ClipRepo persists and loads clips from PostgreSQL.
type ClipRepo struct{ Pool PgxPool }

// NewClipRepo constructs a ClipRepo with the given pool.
func NewClipRepo(p PgxPool) *ClipRepo { return &ClipRepo{Pool: p} }

// Get loads a clip by id.
func (r *ClipRepo) Get(ctx domain.Context, id string) (domain.Clip, error) {
	ctx, end := span(ctx, "repo.clips", "clips.Get", "SELECT", "clips")
	defer end()
	q := clipSelectColumns + ` WHERE id=$1`
	c, err := scanClip(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Clip{}, fmt.Errorf("op=clip.get: %w", domain.ErrNotFound)
		}
		return domain.Clip{}, fmt.Errorf("op=clip.get: %w", err)
	}
	return c, nil
}

// ListByBatch returns every clip in a batch, ordered by variant.
func (r *ClipRepo) ListByBatch(ctx domain.Context, batchID string) ([]domain.Clip, error) {
	ctx, end := span(ctx, "repo.clips", "clips.ListByBatch", "SELECT", "clips")
	defer end()
	q := clipSelectColumns + ` WHERE batch_id=$1 ORDER BY variant_id ASC`
	rows, err := r.Pool.Query(ctx, q, batchID)
	if err != nil {
		return nil, fmt.Errorf("op=clip.list_by_batch: %w", err)
	}
	defer rows.Close()
	var out []domain.Clip
	for rows.Next() {
		c, err := scanClipRows(rows)
		if err != nil {
			return nil, fmt.Errorf("op=clip.list_by_batch_scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Advance is a single-row update guarded by the clip's current status, so a
// stage handler racing a crash-recovery retry never double-applies its
// patch (spec §4.1).
func (r *ClipRepo) Advance(ctx domain.Context, id string, from, to domain.ClipStatus, patch domain.ClipPatch) error {
	ctx, end := span(ctx, "repo.clips", "clips.Advance", "UPDATE", "clips")
	defer end()

	sets := []string{"status=$2", "updated_at=$3"}
	args := []any{id, to, time.Now().UTC()}
	n := len(args) + 1

	addStr := func(col string, v *string) {
		if v == nil {
			return
		}
		sets = append(sets, fmt.Sprintf("%s=$%d", col, n))
		args = append(args, *v)
		n++
	}
	addStr("script_spoken", patch.ScriptSpoken)
	addStr("sora_prompt", patch.SoraPrompt)
	addStr("image_prompt", patch.ImagePrompt)
	addStr("voice_url", patch.VoiceURL)
	addStr("raw_video_url", patch.RawVideoURL)
	addStr("final_url", patch.FinalURL)
	addStr("image_url", patch.ImageURL)
	addStr("provider", patch.Provider)
	addStr("error", patch.Error)

	if patch.OnScreenText != nil {
		b, err := json.Marshal(*patch.OnScreenText)
		if err != nil {
			return fmt.Errorf("op=clip.advance.marshal_overlays: %w", err)
		}
		sets = append(sets, fmt.Sprintf("on_screen_text=$%d", n))
		args = append(args, b)
		n++
	}

	q := fmt.Sprintf(`UPDATE clips SET %s WHERE id=$1 AND status=$%d`, joinSets(sets), n)
	args = append(args, from)

	tag, err := r.Pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("op=clip.advance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=clip.advance: %w", domain.ErrConflict)
	}
	return nil
}

// Fail marks a clip failed, unless it has already reached a terminal status.
func (r *ClipRepo) Fail(ctx domain.Context, id string, reason string) error {
	ctx, end := span(ctx, "repo.clips", "clips.Fail", "UPDATE", "clips")
	defer end()
	q := `UPDATE clips SET status=$2, error=$3, updated_at=$4 WHERE id=$1 AND status NOT IN ($5,$6)`
	_, err := r.Pool.Exec(ctx, q, id, domain.ClipFailed, reason, time.Now().UTC(), domain.ClipReady, domain.ClipFailed)
	if err != nil {
		return fmt.Errorf("op=clip.fail: %w", err)
	}
	return nil
}

// SetWinner flags a clip as the chosen winner among its batch's variants.
func (r *ClipRepo) SetWinner(ctx domain.Context, id string, winner bool) error {
	ctx, end := span(ctx, "repo.clips", "clips.SetWinner", "UPDATE", "clips")
	defer end()
	if _, err := r.Pool.Exec(ctx, `UPDATE clips SET winner=$2, updated_at=$3 WHERE id=$1`, id, winner, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=clip.set_winner: %w", err)
	}
	return nil
}

// SetKilled flags a clip as killed (excluded from further consideration).
func (r *ClipRepo) SetKilled(ctx domain.Context, id string, killed bool) error {
	ctx, end := span(ctx, "repo.clips", "clips.SetKilled", "UPDATE", "clips")
	defer end()
	if _, err := r.Pool.Exec(ctx, `UPDATE clips SET killed=$2, updated_at=$3 WHERE id=$1`, id, killed, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=clip.set_killed: %w", err)
	}
	return nil
}

// ListRetentionEligible returns ready/failed clips past the retention
// cutoff that have not yet been soft-deleted (spec §4.3 step 5: apply retention).
func (r *ClipRepo) ListRetentionEligible(ctx domain.Context, olderThan time.Time, limit int) ([]domain.Clip, error) {
	ctx, end := span(ctx, "repo.clips", "clips.ListRetentionEligible", "SELECT", "clips")
	defer end()
	q := clipSelectColumns + ` WHERE status IN ($2,$3) AND deleted_at IS NULL AND updated_at < $4 AND (killed OR NOT winner) ORDER BY updated_at ASC LIMIT $5`
	rows, err := r.Pool.Query(ctx, q, domain.ClipReady, domain.ClipFailed, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("op=clip.list_retention_eligible: %w", err)
	}
	defer rows.Close()
	var out []domain.Clip
	for rows.Next() {
		c, err := scanClipRows(rows)
		if err != nil {
			return nil, fmt.Errorf("op=clip.list_retention_eligible_scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SoftDelete marks a clip's artifacts eligible for storage cleanup without
// removing its row (the batch summary remains queryable).
func (r *ClipRepo) SoftDelete(ctx domain.Context, id string) error {
	ctx, end := span(ctx, "repo.clips", "clips.SoftDelete", "UPDATE", "clips")
	defer end()
	if _, err := r.Pool.Exec(ctx, `UPDATE clips SET deleted_at=$2, updated_at=$2 WHERE id=$1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=clip.soft_delete: %w", err)
	}
	return nil
}

const clipSelectColumns = `SELECT id, batch_id, variant_id, preset_key, status, script_spoken, on_screen_text,
	sora_prompt, voice_url, raw_video_url, final_url, image_url, image_prompt, winner, killed, provider,
	video_service, COALESCE(error,''), deleted_at, price_cents, created_at, updated_at FROM clips`

func scanClip(row rowScanner) (domain.Clip, error) { return scanClipRows(row) }

func scanClipRows(row rowScanner) (domain.Clip, error) {
	var c domain.Clip
	var overlaysJSON []byte
	if err := row.Scan(&c.ID, &c.BatchID, &c.VariantID, &c.PresetKey, &c.Status, &c.ScriptSpoken, &overlaysJSON,
		&c.SoraPrompt, &c.VoiceURL, &c.RawVideoURL, &c.FinalURL, &c.ImageURL, &c.ImagePrompt, &c.Winner, &c.Killed,
		&c.Provider, &c.VideoService, &c.Error, &c.DeletedAt, &c.PriceCents, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Clip{}, err
	}
	if len(overlaysJSON) > 0 {
		if err := json.Unmarshal(overlaysJSON, &c.OnScreenText); err != nil {
			return domain.Clip{}, fmt.Errorf("unmarshal overlays: %w", err)
		}
	}
	return c, nil
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

var _ domain.ClipRepository = (*ClipRepo)(nil)
