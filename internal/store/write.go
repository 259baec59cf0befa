package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/cohort/internal/model"
)

// InsertSession writes the session shell and sets s.ID.
// The config is stored as canonical JSON.
func (t *Tx) InsertSession(ctx context.Context, s *model.Session) error {
	configJSON, err := marshalConfig(s.Config)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO sessions
		(code, config_name, config, config_hash, label, special_category, pre_create_id,
		 created_at, time_scheduled, time_started, marketplace_num_participants,
		 marketplace_sandbox, archived, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.Code,
		s.ConfigName,
		configJSON,
		s.ConfigHash,
		s.Label,
		string(s.SpecialCategory),
		s.PreCreateID,
		s.CreatedAt.UTC().UnixNano(),
		timeToNull(s.TimeScheduled),
		timeToNull(s.TimeStarted),
		s.MarketplaceNumParticipants,
		s.MarketplaceSandbox,
		s.Archived,
		s.Comment,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// InsertParticipants bulk-inserts participants with one prepared statement
// and sets each ID.
func (t *Tx) InsertParticipants(ctx context.Context, participants []*model.Participant) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO participants
		(session_id, code, id_in_session, start_order, label, max_page_index,
		 marketplace_worker_id, marketplace_assignment_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("insert participants: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range participants {
		res, err := stmt.ExecContext(ctx,
			p.SessionID, p.Code, p.IDInSession, p.StartOrder, p.Label, p.MaxPageIndex,
			p.MarketplaceWorkerID, p.MarketplaceAssignmentID,
		)
		if err != nil {
			return fmt.Errorf("insert participant %d: %w", p.IDInSession, err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert participant %d: %w", p.IDInSession, err)
		}
	}
	return nil
}

// InsertSubsessions bulk-inserts subsessions and sets each ID.
func (t *Tx) InsertSubsessions(ctx context.Context, subsessions []*model.Subsession) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO subsessions (session_id, app_name, app_index, round_number, vars)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("insert subsessions: prepare: %w", err)
	}
	defer stmt.Close()

	for _, sub := range subsessions {
		varsJSON, err := marshalVars(sub.Vars)
		if err != nil {
			return fmt.Errorf("insert subsession %s/%d: %w", sub.AppName, sub.RoundNumber, err)
		}
		res, err := stmt.ExecContext(ctx, sub.SessionID, sub.AppName, sub.AppIndex, sub.RoundNumber, varsJSON)
		if err != nil {
			return fmt.Errorf("insert subsession %s/%d: %w", sub.AppName, sub.RoundNumber, err)
		}
		if sub.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert subsession %s/%d: %w", sub.AppName, sub.RoundNumber, err)
		}
	}
	return nil
}

// InsertPlayers bulk-inserts players and sets each ID.
func (t *Tx) InsertPlayers(ctx context.Context, players []*model.Player) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO players
		(session_id, subsession_id, participant_id, app_name, app_index, round_number,
		 group_number, id_in_group, vars)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("insert players: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range players {
		varsJSON, err := marshalVars(p.Vars)
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		res, err := stmt.ExecContext(ctx,
			p.SessionID, p.SubsessionID, p.ParticipantID, p.AppName, p.AppIndex, p.RoundNumber,
			p.GroupNumber, p.IDInGroup, varsJSON,
		)
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
	}
	return nil
}

// SaveSubsessionResult persists what the group-formation and initialization
// hooks produced for one subsession: its vars and every player's group
// assignment and vars.
func (t *Tx) SaveSubsessionResult(ctx context.Context, sub *model.Subsession, players []*model.Player) error {
	varsJSON, err := marshalVars(sub.Vars)
	if err != nil {
		return fmt.Errorf("save subsession %s/%d: %w", sub.AppName, sub.RoundNumber, err)
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE subsessions SET vars = ? WHERE id = ?`, varsJSON, sub.ID); err != nil {
		return fmt.Errorf("save subsession %s/%d: %w", sub.AppName, sub.RoundNumber, err)
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		UPDATE players SET group_number = ?, id_in_group = ?, vars = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("save players: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range players {
		varsJSON, err := marshalVars(p.Vars)
		if err != nil {
			return fmt.Errorf("save player %d: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, p.GroupNumber, p.IDInGroup, varsJSON, p.ID); err != nil {
			return fmt.Errorf("save player %d: %w", p.ID, err)
		}
	}
	return nil
}

// InsertPageRoutes bulk-inserts routing table rows.
func (t *Tx) InsertPageRoutes(ctx context.Context, routes []model.PageRoute) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO page_routes (participant_id, page_index, app_name, player_id, page_name, url)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("insert page routes: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range routes {
		if _, err := stmt.ExecContext(ctx, r.ParticipantID, r.PageIndex, r.AppName, r.PlayerID, r.PageName, r.URL); err != nil {
			return fmt.Errorf("insert page route (%d, %d): %w", r.ParticipantID, r.PageIndex, err)
		}
	}
	return nil
}

// SetMaxPageIndex records the number of pages a participant will see.
func (t *Tx) SetMaxPageIndex(ctx context.Context, participantID int64, max int) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE participants SET max_page_index = ? WHERE id = ?
	`, max, participantID); err != nil {
		return fmt.Errorf("set max page index: %w", err)
	}
	return nil
}

// BindRoom points a room at a session, replacing any previous binding.
func (t *Tx) BindRoom(ctx context.Context, roomName string, sessionID int64) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO room_sessions (room_name, session_id) VALUES (?, ?)
		ON CONFLICT(room_name) DO UPDATE SET session_id = excluded.session_id
	`, roomName, sessionID); err != nil {
		return fmt.Errorf("bind room %q: %w", roomName, err)
	}
	return nil
}

// CodesInUse reports which of the candidate codes already belong to a
// session (kind "session") or participant (kind "participant").
func (t *Tx) CodesInUse(ctx context.Context, kind string, codes []string) (map[string]bool, error) {
	var table string
	switch kind {
	case "session":
		table = "sessions"
	case "participant":
		table = "participants"
	default:
		return nil, fmt.Errorf("codes in use: unknown kind %q", kind)
	}
	inUse := make(map[string]bool)
	for chunk := range slices.Chunk(codes, codeLookupBatch) {
		if err := t.markCodesInUse(ctx, table, chunk, inUse); err != nil {
			return nil, err
		}
	}
	return inUse, nil
}

// codeLookupBatch keeps each IN list well under SQLite's bound-variable limit.
const codeLookupBatch = 500

func (t *Tx) markCodesInUse(ctx context.Context, table string, codes []string, inUse map[string]bool) error {
	args := make([]any, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(codes)), ",")
	rows, err := t.tx.QueryContext(ctx,
		fmt.Sprintf("SELECT code FROM %s WHERE code IN (%s)", table, placeholders), args...)
	if err != nil {
		return fmt.Errorf("codes in use: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return fmt.Errorf("codes in use: %w", err)
		}
		inUse[code] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("codes in use: %w", err)
	}
	return nil
}

// SaveProgress persists a participant's runtime page state.
func (s *Store) SaveProgress(ctx context.Context, p *model.Participant) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE participants SET
			index_in_pages = ?, visited = ?, is_on_wait_page = ?, waiting_for = ?,
			current_form_page_url = ?, current_app_name = ?, current_page_name = ?,
			round_number = ?, time_started = ?
		WHERE id = ?
	`,
		p.IndexInPages, p.Visited, p.IsOnWaitPage, p.WaitingFor,
		p.CurrentFormPageURL, p.CurrentAppName, p.CurrentPageName,
		p.RoundNumber, timeToNull(p.TimeStarted),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save progress: participant %d: %w", p.ID, ErrNotFound)
	}
	return nil
}

// StartProgress saves a participant's first visit. The row is only written
// while it is still unvisited; false means another writer started it first.
func (s *Store) StartProgress(ctx context.Context, p *model.Participant) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE participants SET
			index_in_pages = ?, visited = 1, is_on_wait_page = ?, waiting_for = ?,
			current_form_page_url = ?, current_app_name = ?, current_page_name = ?,
			round_number = ?, time_started = ?
		WHERE id = ? AND visited = 0
	`,
		p.IndexInPages, p.IsOnWaitPage, p.WaitingFor,
		p.CurrentFormPageURL, p.CurrentAppName, p.CurrentPageName,
		p.RoundNumber, timeToNull(p.TimeStarted),
		p.ID,
	)
	if err != nil {
		return false, fmt.Errorf("start progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("start progress: %w", err)
	}
	return n == 1, nil
}

// MarkSessionStarted stamps time_started the first time any participant
// of the session starts. Later calls are no-ops.
func (s *Store) MarkSessionStarted(ctx context.Context, sessionID int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET time_started = ? WHERE id = ? AND time_started IS NULL
	`, at.UTC().UnixNano(), sessionID); err != nil {
		return fmt.Errorf("mark session started: %w", err)
	}
	return nil
}

// SetArchived flips a session's archive flag.
func (s *Store) SetArchived(ctx context.Context, code string, archived bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET archived = ? WHERE code = ?`, archived, code)
	if err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set archived: session %q: %w", code, ErrNotFound)
	}
	return nil
}

// DeleteSession removes a session; foreign keys cascade the delete to its
// participants, subsessions, players, page routes and room binding.
func (s *Store) DeleteSession(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete session %q: %w", code, ErrNotFound)
	}
	return nil
}
