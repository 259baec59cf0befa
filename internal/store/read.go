package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cohort/internal/model"
)

const sessionColumns = `
	id, code, config_name, config, config_hash, label, special_category, pre_create_id,
	created_at, time_scheduled, time_started, marketplace_num_participants,
	marketplace_sandbox, archived, comment`

const participantColumns = `
	id, session_id, code, id_in_session, start_order, label, index_in_pages, max_page_index,
	visited, is_on_wait_page, waiting_for, current_form_page_url, current_app_name,
	current_page_name, round_number, marketplace_worker_id, marketplace_assignment_id,
	time_started`

const playerColumns = `
	id, session_id, subsession_id, participant_id, app_name, app_index, round_number,
	group_number, id_in_group, vars`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// SessionByCode returns the session with the given code.
func (r reader) SessionByCode(ctx context.Context, code string) (*model.Session, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE code = ?`, code)
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err, "session %q", code)
	}
	return s, nil
}

// SessionByID returns the session with the given row id.
func (r reader) SessionByID(ctx context.Context, id int64) (*model.Session, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err, "session %d", id)
	}
	return s, nil
}

// SessionByPreCreateID finds the session created for a correlation id, so a
// client that started creation asynchronously can poll for the result.
func (r reader) SessionByPreCreateID(ctx context.Context, preCreateID string) (*model.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE pre_create_id = ? AND pre_create_id != ''
		ORDER BY id DESC LIMIT 1
	`, preCreateID)
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err, "session with pre-create id %q", preCreateID)
	}
	return s, nil
}

// Sessions lists sessions newest first.
func (r reader) Sessions(ctx context.Context, includeArchived bool) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY id DESC`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Participants returns a session's participants ordered by id_in_session.
func (r reader) Participants(ctx context.Context, sessionID int64) ([]*model.Participant, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+participantColumns+` FROM participants
		WHERE session_id = ?
		ORDER BY id_in_session ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	participants := []*model.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}

// ParticipantByCode returns the participant with the given code.
func (r reader) ParticipantByCode(ctx context.Context, code string) (*model.Participant, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE code = ?`, code)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, notFound(err, "participant %q", code)
	}
	return p, nil
}

// Subsessions returns a session's subsessions ordered by (app position, round).
func (r reader) Subsessions(ctx context.Context, sessionID int64) ([]*model.Subsession, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, session_id, app_name, app_index, round_number, vars
		FROM subsessions
		WHERE session_id = ?
		ORDER BY app_index ASC, round_number ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query subsessions: %w", err)
	}
	defer rows.Close()

	subsessions := []*model.Subsession{}
	for rows.Next() {
		var sub model.Subsession
		var varsJSON string
		if err := rows.Scan(&sub.ID, &sub.SessionID, &sub.AppName, &sub.AppIndex, &sub.RoundNumber, &varsJSON); err != nil {
			return nil, fmt.Errorf("scan subsession: %w", err)
		}
		if sub.Vars, err = unmarshalVars(varsJSON); err != nil {
			return nil, err
		}
		subsessions = append(subsessions, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subsessions: %w", err)
	}
	return subsessions, nil
}

// Players returns a session's players ordered by participant, then
// (app position, round). That is each participant's path through the session.
func (r reader) Players(ctx context.Context, sessionID int64) ([]*model.Player, error) {
	return r.queryPlayers(ctx, `
		SELECT `+playerColumns+` FROM players
		WHERE session_id = ?
		ORDER BY participant_id ASC, app_index ASC, round_number ASC
	`, sessionID)
}

// PlayersOf returns one participant's players in (app position, round) order.
func (r reader) PlayersOf(ctx context.Context, participantID int64) ([]*model.Player, error) {
	return r.queryPlayers(ctx, `
		SELECT `+playerColumns+` FROM players
		WHERE participant_id = ?
		ORDER BY app_index ASC, round_number ASC
	`, participantID)
}

func (r reader) queryPlayers(ctx context.Context, query string, arg int64) ([]*model.Player, error) {
	rows, err := r.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	players := []*model.Player{}
	for rows.Next() {
		var p model.Player
		var varsJSON string
		if err := rows.Scan(
			&p.ID, &p.SessionID, &p.SubsessionID, &p.ParticipantID, &p.AppName, &p.AppIndex,
			&p.RoundNumber, &p.GroupNumber, &p.IDInGroup, &varsJSON,
		); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		if p.Vars, err = unmarshalVars(varsJSON); err != nil {
			return nil, err
		}
		players = append(players, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}
	return players, nil
}

// PageRoute looks up the page at an absolute index.
func (r reader) PageRoute(ctx context.Context, participantID int64, index int) (model.PageRoute, error) {
	var route model.PageRoute
	err := r.q.QueryRowContext(ctx, `
		SELECT participant_id, page_index, app_name, player_id, page_name, url
		FROM page_routes
		WHERE participant_id = ? AND page_index = ?
	`, participantID, index).Scan(
		&route.ParticipantID, &route.PageIndex, &route.AppName, &route.PlayerID, &route.PageName, &route.URL,
	)
	if err != nil {
		return model.PageRoute{}, notFound(err, "page %d of participant %d", index, participantID)
	}
	return route, nil
}

// PageRoutes returns a participant's whole route in index order.
func (r reader) PageRoutes(ctx context.Context, participantID int64) ([]model.PageRoute, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT participant_id, page_index, app_name, player_id, page_name, url
		FROM page_routes
		WHERE participant_id = ?
		ORDER BY page_index ASC
	`, participantID)
	if err != nil {
		return nil, fmt.Errorf("query page routes: %w", err)
	}
	defer rows.Close()

	routes := []model.PageRoute{}
	for rows.Next() {
		var route model.PageRoute
		if err := rows.Scan(
			&route.ParticipantID, &route.PageIndex, &route.AppName, &route.PlayerID, &route.PageName, &route.URL,
		); err != nil {
			return nil, fmt.Errorf("scan page route: %w", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page routes: %w", err)
	}
	return routes, nil
}

// Counts is the number of rows a session owns, per table.
type Counts struct {
	Participants int `json:"participants"`
	Subsessions  int `json:"subsessions"`
	Players      int `json:"players"`
	PageRoutes   int `json:"page_routes"`
}

// CountEntities counts what a session owns. A sessionID of 0 counts the
// whole store.
func (r reader) CountEntities(ctx context.Context, sessionID int64) (Counts, error) {
	var c Counts
	where, args := "", []any{}
	if sessionID != 0 {
		where, args = " WHERE session_id = ?", []any{sessionID}
	}
	for _, q := range []struct {
		dest  *int
		query string
	}{
		{&c.Participants, `SELECT COUNT(*) FROM participants` + where},
		{&c.Subsessions, `SELECT COUNT(*) FROM subsessions` + where},
		{&c.Players, `SELECT COUNT(*) FROM players` + where},
		{&c.PageRoutes, `SELECT COUNT(*) FROM page_routes WHERE participant_id IN (SELECT id FROM participants` + where + `)`},
	} {
		if err := r.q.QueryRowContext(ctx, q.query, args...).Scan(q.dest); err != nil {
			return Counts{}, fmt.Errorf("count entities: %w", err)
		}
	}
	return c, nil
}

// CountSessions returns the number of sessions in the store.
func (r reader) CountSessions(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// RoomSession returns the session currently bound to a room.
func (r reader) RoomSession(ctx context.Context, roomName string) (*model.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+prefixed("s", sessionColumns)+`
		FROM room_sessions rs JOIN sessions s ON s.id = rs.session_id
		WHERE rs.room_name = ?
	`, roomName)
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err, "session for room %q", roomName)
	}
	return s, nil
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		s                          model.Session
		category, configJSON       string
		createdAt                  int64
		timeScheduled, timeStarted sql.NullInt64
	)
	if err := row.Scan(
		&s.ID, &s.Code, &s.ConfigName, &configJSON, &s.ConfigHash, &s.Label, &category, &s.PreCreateID,
		&createdAt, &timeScheduled, &timeStarted, &s.MarketplaceNumParticipants,
		&s.MarketplaceSandbox, &s.Archived, &s.Comment,
	); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	cfg, err := unmarshalConfig(configJSON)
	if err != nil {
		return nil, err
	}
	s.Config = cfg
	s.SpecialCategory = model.SpecialCategory(category)
	s.CreatedAt = time.Unix(0, createdAt).UTC()
	s.TimeScheduled = nullToTime(timeScheduled)
	s.TimeStarted = nullToTime(timeStarted)
	return &s, nil
}

func scanParticipant(row rowScanner) (*model.Participant, error) {
	var (
		p           model.Participant
		timeStarted sql.NullInt64
	)
	if err := row.Scan(
		&p.ID, &p.SessionID, &p.Code, &p.IDInSession, &p.StartOrder, &p.Label, &p.IndexInPages, &p.MaxPageIndex,
		&p.Visited, &p.IsOnWaitPage, &p.WaitingFor, &p.CurrentFormPageURL, &p.CurrentAppName,
		&p.CurrentPageName, &p.RoundNumber, &p.MarketplaceWorkerID, &p.MarketplaceAssignmentID,
		&timeStarted,
	); err != nil {
		return nil, fmt.Errorf("scan participant: %w", err)
	}
	p.TimeStarted = nullToTime(timeStarted)
	return &p, nil
}

// notFound maps sql.ErrNoRows to ErrNotFound with a description of what
// was looked up. Other errors pass through wrapped.
func notFound(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("read %s: %w", what, err)
}

func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
