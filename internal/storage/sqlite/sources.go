//go:build sqlite

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sourcectl/internal/domain"
	"sourcectl/internal/storage"
)

const sourceColumns = `pk, slug, name, enabled, provider_type, user_matching_mode, user_path_template, icon,
	consumer_key, consumer_secret, additional_scopes,
	authorization_url, access_token_url, profile_url, request_token_url,
	oidc_well_known_url, oidc_jwks_url, groups_claim, oidc_jwks,
	user_property_mappings, group_property_mappings,
	authentication_flow, enrollment_flow, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*domain.Source, error) {
	var s domain.Source
	var mode, jwks, userMappings, groupMappings, createdAt, updatedAt string
	var authURL, tokenURL, profileURL, requestTokenURL, wellKnown, jwksURL, groupsClaim, authFlow, enrollFlow sql.NullString
	err := row.Scan(
		&s.PK, &s.Slug, &s.Name, &s.Enabled, &s.ProviderType, &mode, &s.UserPathTemplate, &s.Icon,
		&s.ConsumerKey, &s.ConsumerSecretEncrypted, &s.AdditionalScopes,
		&authURL, &tokenURL, &profileURL, &requestTokenURL,
		&wellKnown, &jwksURL, &groupsClaim, &jwks,
		&userMappings, &groupMappings,
		&authFlow, &enrollFlow, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.UserMatchingMode = domain.UserMatchingMode(mode)
	s.AuthorizationURL = nullable(authURL)
	s.AccessTokenURL = nullable(tokenURL)
	s.ProfileURL = nullable(profileURL)
	s.RequestTokenURL = nullable(requestTokenURL)
	s.OIDCWellKnownURL = nullable(wellKnown)
	s.OIDCJWKSURL = nullable(jwksURL)
	s.GroupsClaim = nullable(groupsClaim)
	s.AuthenticationFlow = nullable(authFlow)
	s.EnrollmentFlow = nullable(enrollFlow)
	if err := json.Unmarshal([]byte(jwks), &s.OIDCJWKS); err != nil {
		return nil, fmt.Errorf("decode oidc_jwks: %w", err)
	}
	if err := json.Unmarshal([]byte(userMappings), &s.UserPropertyMappings); err != nil {
		return nil, fmt.Errorf("decode user_property_mappings: %w", err)
	}
	if err := json.Unmarshal([]byte(groupMappings), &s.GroupPropertyMappings); err != nil {
		return nil, fmt.Errorf("decode group_property_mappings: %w", err)
	}
	if t, e := time.Parse(time.RFC3339Nano, createdAt); e == nil {
		s.CreatedAt = t
	}
	if t, e := time.Parse(time.RFC3339Nano, updatedAt); e == nil {
		s.UpdatedAt = t
	}
	return &s, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// sourceArgs returns the values for every column in sourceColumns after pk,
// excluding the timestamps.
func sourceArgs(s *domain.Source) ([]any, error) {
	jwks := s.OIDCJWKS
	if jwks == nil {
		jwks = map[string]any{}
	}
	jwksJSON, err := json.Marshal(jwks)
	if err != nil {
		return nil, fmt.Errorf("encode oidc_jwks: %w", err)
	}
	userJSON, err := json.Marshal(nonNil(s.UserPropertyMappings))
	if err != nil {
		return nil, err
	}
	groupJSON, err := json.Marshal(nonNil(s.GroupPropertyMappings))
	if err != nil {
		return nil, err
	}
	return []any{
		s.Slug, s.Name, s.Enabled, s.ProviderType, string(s.UserMatchingMode), s.UserPathTemplate, s.Icon,
		s.ConsumerKey, s.ConsumerSecretEncrypted, s.AdditionalScopes,
		s.AuthorizationURL, s.AccessTokenURL, s.ProfileURL, s.RequestTokenURL,
		s.OIDCWellKnownURL, s.OIDCJWKSURL, s.GroupsClaim, string(jwksJSON),
		string(userJSON), string(groupJSON),
		s.AuthenticationFlow, s.EnrollmentFlow,
	}, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY slug ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Source{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

func (s *Store) GetSource(ctx context.Context, slug string) (*domain.Source, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE slug=?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %q: %w", slug, storage.ErrNotFound)
	}
	return src, err
}

func (s *Store) CreateSource(ctx context.Context, src *domain.Source) (*domain.Source, error) {
	if err := storage.ValidateSource(src); err != nil {
		return nil, err
	}
	args, err := sourceArgs(src)
	if err != nil {
		return nil, err
	}
	pk := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	args = append([]any{pk}, args...)
	args = append(args, now, now)
	_, err = s.db.ExecContext(ctx, `INSERT INTO sources(`+sourceColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return nil, storage.WrapIfConflict(err)
	}
	return s.GetSource(ctx, src.Slug)
}

func (s *Store) UpdateSource(ctx context.Context, slug string, src *domain.Source) (*domain.Source, error) {
	if err := storage.ValidateSource(src); err != nil {
		return nil, err
	}
	args, err := sourceArgs(src)
	if err != nil {
		return nil, err
	}
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), slug)
	res, err := s.db.ExecContext(ctx, `UPDATE sources SET
		slug=?, name=?, enabled=?, provider_type=?, user_matching_mode=?, user_path_template=?, icon=?,
		consumer_key=?, consumer_secret=?, additional_scopes=?,
		authorization_url=?, access_token_url=?, profile_url=?, request_token_url=?,
		oidc_well_known_url=?, oidc_jwks_url=?, groups_claim=?, oidc_jwks=?,
		user_property_mappings=?, group_property_mappings=?,
		authentication_flow=?, enrollment_flow=?, updated_at=?
		WHERE slug=?`, args...)
	if err != nil {
		return nil, storage.WrapIfConflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("source %q: %w", slug, storage.ErrNotFound)
	}
	return s.GetSource(ctx, src.Slug)
}

func (s *Store) DeleteSource(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE slug=?`, slug)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("source %q: %w", slug, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListPropertyMappings(ctx context.Context, ordering string) ([]domain.PropertyMapping, error) {
	order, err := storage.ParseMappingOrdering(ordering)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT pk, name, COALESCE(managed, '') FROM property_mappings ORDER BY `+order.OrderBy())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.PropertyMapping{}
	for rows.Next() {
		var pm domain.PropertyMapping
		if err := rows.Scan(&pm.PK, &pm.Name, &pm.Managed); err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}
