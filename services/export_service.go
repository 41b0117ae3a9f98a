package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/repositories"
	"github.com/tt-club/tournament-system/storage"
)

// ExportService renders a completed tournament's standings and rating
// changes as CSV and archives the file in object storage.
type ExportService struct {
	tournaments repositories.TournamentRepository
	standings   repositories.StandingRepository
	members     repositories.MemberRepository
	history     repositories.RatingHistoryRepository
	uploader    storage.FileUploader
}

func NewExportService(
	tournaments repositories.TournamentRepository,
	standings repositories.StandingRepository,
	members repositories.MemberRepository,
	history repositories.RatingHistoryRepository,
	uploader storage.FileUploader,
) *ExportService {
	return &ExportService{
		tournaments: tournaments,
		standings:   standings,
		members:     members,
		history:     history,
		uploader:    uploader,
	}
}

// ExportStandings uploads the CSV and returns its public URL. Only completed
// tournaments export; an unconfigured uploader is a forbidden operation.
func (s *ExportService) ExportStandings(ctx context.Context, tournamentID int) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("%w: export archive is not configured", ErrForbiddenOperation)
	}
	t, err := s.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		return "", ErrTournamentNotFound
	}
	if !t.IsCompleted() {
		return "", ErrTournamentNotCompleted
	}

	standings, err := s.standings.ListByTournament(ctx, tournamentID)
	if err != nil {
		return "", err
	}
	history, err := s.history.ListByTournament(ctx, tournamentID)
	if err != nil {
		return "", err
	}

	body, err := s.renderCSV(ctx, standings, history)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("exports/tournament-%d-%s.csv", tournamentID, uuid.NewString())
	result, err := s.uploader.Upload(ctx, key, "text/csv", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to archive export: %w", err)
	}
	return result.Location, nil
}

func (s *ExportService) renderCSV(ctx context.Context, standings []models.Standing, history []*models.RatingHistory) ([]byte, error) {
	// Latest history row per member wins; rows arrive oldest first.
	changeByMember := make(map[int]*models.RatingHistory, len(history))
	for _, h := range history {
		changeByMember[h.MemberID] = h
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"rank", "member", "wins", "losses", "sets_won", "sets_lost", "rating", "rating_change"}); err != nil {
		return nil, err
	}
	for _, st := range standings {
		name := strconv.Itoa(st.MemberID)
		if member, err := s.members.GetByID(ctx, st.MemberID); err == nil {
			name = member.FirstName + " " + member.LastName
		}
		rating, change := "", ""
		if h, ok := changeByMember[st.MemberID]; ok {
			rating = strconv.Itoa(h.Rating)
			change = strconv.Itoa(h.RatingChange)
		}
		row := []string{
			strconv.Itoa(st.Rank),
			name,
			strconv.Itoa(st.Wins),
			strconv.Itoa(st.Losses),
			strconv.Itoa(st.SetsWon),
			strconv.Itoa(st.SetsLost),
			rating,
			change,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
