package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidagents/bidagents-api/internal/models"
)

var (
	// ErrNotFound means the bid (or profile) does not exist for this owner.
	// A bid owned by a different user is deliberately indistinguishable
	// from one that does not exist.
	ErrNotFound = errors.New("record not found")
)

// WrongStatusError is returned when a guarded status update finds the bid in
// a state other than the expected predecessor.
type WrongStatusError struct {
	Current string
	Want    string
}

func (e *WrongStatusError) Error() string {
	return fmt.Sprintf("bid status is %q, expected %q", e.Current, e.Want)
}

// maxListLimit caps every owner-scoped listing.
const maxListLimit = 50

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// bidCols is the comprehensive column list for all bid queries.
const bidCols = `id, user_id, title, agency, location, description, deadline,
	portal, source_url, relevance_score, status, requirements, pre_filled_data,
	pre_filled_path, submission_method, submission_email,
	analyzed_at, pre_filled_at, submitted_at, created_at, updated_at`

func scanBid(scan func(dest ...interface{}) error) (models.Bid, error) {
	var b models.Bid
	var agency, location, description, portal, sourceURL *string
	var preFilledPath, submissionMethod, submissionEmail *string
	var requirementsRaw, preFilledRaw []byte

	err := scan(
		&b.ID, &b.UserID, &b.Title, &agency, &location, &description, &b.Deadline,
		&portal, &sourceURL, &b.RelevanceScore, &b.Status, &requirementsRaw, &preFilledRaw,
		&preFilledPath, &submissionMethod, &submissionEmail,
		&b.AnalyzedAt, &b.PreFilledAt, &b.SubmittedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return b, err
	}

	if agency != nil {
		b.Agency = *agency
	}
	if location != nil {
		b.Location = *location
	}
	if description != nil {
		b.Description = *description
	}
	if portal != nil {
		b.Portal = *portal
	}
	if sourceURL != nil {
		b.SourceURL = *sourceURL
	}
	if preFilledPath != nil {
		b.PreFilledPath = *preFilledPath
	}
	if submissionMethod != nil {
		b.SubmissionMethod = *submissionMethod
	}
	if submissionEmail != nil {
		b.SubmissionEmail = *submissionEmail
	}
	if len(requirementsRaw) > 0 {
		var req models.Requirements
		if err := json.Unmarshal(requirementsRaw, &req); err == nil {
			b.Requirements = &req
		}
	}
	if len(preFilledRaw) > 0 {
		_ = json.Unmarshal(preFilledRaw, &b.PreFilledData)
	}

	return b, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// ListBids returns the caller's bids, newest first, capped at 50.
func (s *Store) ListBids(ctx context.Context, userID uuid.UUID, limit int) ([]models.Bid, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM bids
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, bidCols), userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		b, err := scanBid(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// GetBid fetches a single bid scoped to its owner.
func (s *Store) GetBid(ctx context.Context, userID, bidID uuid.UUID) (*models.Bid, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM bids WHERE id = $1 AND user_id = $2
	`, bidCols), bidID, userID)

	b, err := scanBid(row.Scan)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bid: %w", err)
	}
	return &b, nil
}

// InsertDiscoveredBids stores the discovery agent's results for a user, one
// row per opportunity with status "new". Re-discovering the same source URL
// refreshes the existing row instead of duplicating it.
func (s *Store) InsertDiscoveredBids(ctx context.Context, userID uuid.UUID, bids []models.Bid) ([]models.Bid, error) {
	saved := make([]models.Bid, 0, len(bids))
	for _, bid := range bids {
		var sourceURL *string
		if bid.SourceURL != "" {
			sourceURL = &bid.SourceURL
		}

		row := s.pool.QueryRow(ctx, fmt.Sprintf(`
			INSERT INTO bids (user_id, title, agency, location, description, deadline, portal, source_url, relevance_score, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'new')
			ON CONFLICT (user_id, source_url) DO UPDATE SET
				title = EXCLUDED.title,
				agency = EXCLUDED.agency,
				location = EXCLUDED.location,
				description = EXCLUDED.description,
				deadline = EXCLUDED.deadline,
				relevance_score = EXCLUDED.relevance_score,
				updated_at = NOW()
			RETURNING %s
		`, bidCols),
			userID, bid.Title, bid.Agency, bid.Location, bid.Description,
			bid.Deadline, bid.Portal, sourceURL, bid.RelevanceScore,
		)

		b, err := scanBid(row.Scan)
		if err != nil {
			return saved, fmt.Errorf("insert discovered bid %q: %w", bid.Title, err)
		}
		saved = append(saved, b)
	}
	return saved, nil
}

// SaveBid upserts a user-saved bid. An existing row is only touched when it
// belongs to the caller; a foreign ID surfaces as ErrNotFound.
func (s *Store) SaveBid(ctx context.Context, userID uuid.UUID, bid models.Bid) (*models.Bid, error) {
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO bids (id, user_id, title, agency, location, description, deadline, portal, source_url, relevance_score, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, 'new')
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			agency = EXCLUDED.agency,
			location = EXCLUDED.location,
			description = EXCLUDED.description,
			deadline = EXCLUDED.deadline,
			portal = EXCLUDED.portal,
			updated_at = NOW()
		WHERE bids.user_id = EXCLUDED.user_id
		RETURNING %s
	`, bidCols),
		bid.ID, userID, bid.Title, bid.Agency, bid.Location, bid.Description,
		bid.Deadline, bid.Portal, bid.SourceURL, bid.RelevanceScore,
	)

	b, err := scanBid(row.Scan)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("save bid: %w", err)
	}
	return &b, nil
}

// StatusPatch describes one lifecycle transition plus the payload that stage
// adds to the bid.
type StatusPatch struct {
	FromStatus string
	ToStatus   string

	Requirements     *models.Requirements
	PreFilledData    map[string]string
	PreFilledPath    string
	SubmissionMethod string
	SubmissionEmail  string
}

// patchAssignments returns the SET fragments (beyond status/updated_at) for a
// patch, with placeholder numbering starting at firstArg.
func patchAssignments(patch StatusPatch, firstArg int) ([]string, []interface{}, error) {
	var sets []string
	var args []interface{}
	n := firstArg

	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, val)
		n++
	}

	if patch.Requirements != nil {
		raw, err := json.Marshal(patch.Requirements)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal requirements: %w", err)
		}
		add("requirements", raw)
	}
	if patch.PreFilledData != nil {
		raw, err := json.Marshal(patch.PreFilledData)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal pre-filled data: %w", err)
		}
		add("pre_filled_data", raw)
	}
	if patch.PreFilledPath != "" {
		add("pre_filled_path", patch.PreFilledPath)
	}
	if patch.SubmissionMethod != "" {
		add("submission_method", patch.SubmissionMethod)
	}
	if patch.SubmissionEmail != "" {
		add("submission_email", patch.SubmissionEmail)
	}

	switch patch.ToStatus {
	case models.StatusAnalyzed:
		sets = append(sets, "analyzed_at = NOW()")
	case models.StatusPreFilled:
		sets = append(sets, "pre_filled_at = NOW()")
	case models.StatusSubmitted:
		sets = append(sets, "submitted_at = NOW()")
	}

	return sets, args, nil
}

// AdvanceBidStatus applies a guarded lifecycle transition. The expected
// predecessor status is part of the UPDATE predicate, so two racing calls for
// the same transition cannot both succeed. The bid must belong to userID.
func (s *Store) AdvanceBidStatus(ctx context.Context, userID, bidID uuid.UUID, patch StatusPatch) (*models.Bid, error) {
	if !models.ValidStatus(patch.ToStatus) {
		return nil, fmt.Errorf("invalid target status %q", patch.ToStatus)
	}

	sets := []string{"status = $3", "updated_at = NOW()"}
	args := []interface{}{bidID, userID, patch.ToStatus, patch.FromStatus}

	extraSets, extraArgs, err := patchAssignments(patch, 5)
	if err != nil {
		return nil, err
	}
	sets = append(sets, extraSets...)
	args = append(args, extraArgs...)

	query := fmt.Sprintf(`
		UPDATE bids SET %s
		WHERE id = $1 AND user_id = $2 AND status = $4
		RETURNING %s
	`, strings.Join(sets, ", "), bidCols)

	row := s.pool.QueryRow(ctx, query, args...)
	b, err := scanBid(row.Scan)
	if err == nil {
		return &b, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("advance bid status: %w", err)
	}

	// Zero rows: either the bid is not ours, or it is in the wrong state.
	var current string
	err = s.pool.QueryRow(ctx, "SELECT status FROM bids WHERE id = $1 AND user_id = $2", bidID, userID).Scan(&current)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("advance bid status: %w", err)
	}
	return nil, &WrongStatusError{Current: current, Want: patch.FromStatus}
}

// AppendActivity inserts one audit record. Callers treat a failure here as
// non-fatal; the primary mutation has already happened.
func (s *Store) AppendActivity(ctx context.Context, a models.Activity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activities (user_id, type, message, bid_id)
		VALUES ($1, $2, $3, $4)
	`, a.UserID, a.Type, a.Message, a.BidID)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (s *Store) ListActivities(ctx context.Context, userID uuid.UUID, limit int) ([]models.Activity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, type, message, bid_id, created_at
		FROM activities
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.Message, &a.BidID, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// CreateProfile records onboarding completion. Re-running onboarding replaces
// the previous profile.
func (s *Store) CreateProfile(ctx context.Context, p models.UserProfile) (*models.UserProfile, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO user_profiles (user_id, role, company_name, business_type, naics_codes, geography, uploaded_files, keywords, portals, has_completed_onboarding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			role = EXCLUDED.role,
			company_name = EXCLUDED.company_name,
			business_type = EXCLUDED.business_type,
			naics_codes = EXCLUDED.naics_codes,
			geography = EXCLUDED.geography,
			uploaded_files = EXCLUDED.uploaded_files,
			keywords = EXCLUDED.keywords,
			portals = EXCLUDED.portals,
			has_completed_onboarding = EXCLUDED.has_completed_onboarding
		RETURNING id, created_at
	`, p.UserID, p.Role, p.CompanyName, p.BusinessType, p.NAICSCodes, p.Geography,
		p.UploadedFiles, p.Keywords, p.Portals, p.Completed,
	)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return &p, nil
}

func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	var p models.UserProfile
	var role, companyName, businessType, geography *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, role, company_name, business_type, naics_codes, geography, uploaded_files, keywords, portals, has_completed_onboarding, created_at
		FROM user_profiles WHERE user_id = $1
	`, userID).Scan(
		&p.ID, &p.UserID, &role, &companyName, &businessType, &p.NAICSCodes,
		&geography, &p.UploadedFiles, &p.Keywords, &p.Portals, &p.Completed, &p.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	if role != nil {
		p.Role = *role
	}
	if companyName != nil {
		p.CompanyName = *companyName
	}
	if businessType != nil {
		p.BusinessType = *businessType
	}
	if geography != nil {
		p.Geography = *geography
	}
	return &p, nil
}

// GetStats computes the caller's dashboard summary.
func (s *Store) GetStats(ctx context.Context, userID uuid.UUID) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int
	var avgRelevance *float64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*), AVG(relevance_score) FROM bids WHERE user_id = $1", userID,
	).Scan(&total, &avgRelevance)
	if err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}
	stats["totalBids"] = total
	if avgRelevance != nil {
		stats["averageRelevance"] = *avgRelevance
	} else {
		stats["averageRelevance"] = 0.0
	}

	byStatus := map[string]int{
		models.StatusNew:       0,
		models.StatusAnalyzed:  0,
		models.StatusPreFilled: 0,
		models.StatusSubmitted: 0,
	}
	rows, err := s.pool.Query(ctx,
		"SELECT status, COUNT(*) FROM bids WHERE user_id = $1 GROUP BY status", userID,
	)
	if err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		byStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats["byStatus"] = byStatus

	if total > 0 {
		stats["submittedRate"] = float64(byStatus[models.StatusSubmitted]) / float64(total)
	} else {
		stats["submittedRate"] = 0.0
	}

	return stats, nil
}

// SetAgentState records the last reported state of one capability for a user.
func (s *Store) SetAgentState(ctx context.Context, userID uuid.UUID, capability, status, message string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_states (user_id, capability, status, message, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, capability) DO UPDATE SET
			status = EXCLUDED.status,
			message = EXCLUDED.message,
			updated_at = NOW()
	`, userID, capability, status, message)
	if err != nil {
		return fmt.Errorf("set agent state: %w", err)
	}
	return nil
}

// GetAgentStates returns the state of every known capability for a user,
// defaulting to idle for capabilities that never ran.
func (s *Store) GetAgentStates(ctx context.Context, userID uuid.UUID, capabilities []string) (map[string]models.AgentState, error) {
	states := make(map[string]models.AgentState, len(capabilities))
	for _, cap := range capabilities {
		states[cap] = models.AgentState{Capability: cap, Status: "idle"}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT capability, status, message, updated_at
		FROM agent_states WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("get agent states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st models.AgentState
		if err := rows.Scan(&st.Capability, &st.Status, &st.Message, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent state: %w", err)
		}
		states[st.Capability] = st
	}
	return states, rows.Err()
}
