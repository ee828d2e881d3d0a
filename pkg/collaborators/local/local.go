// Package local provides file-backed collaborator implementations for
// development and single-node deployments. Subjects and the entity catalog
// live in JSON files; email and webhook delivery are logged, not sent, since
// real transports belong to the surrounding CRM.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dripflow/dripflow/pkg/models"
)

// ErrSubjectNotFound indicates the subject file does not exist.
var ErrSubjectNotFound = errors.New("subject not found")

// catalog lists the CRM entities workflows may reference, per organization.
type catalog struct {
	Stages    []string `json:"stages"`
	Tags      []string `json:"tags"`
	Templates []string `json:"templates"`
	Endpoints []string `json:"endpoints"`
}

// Service implements PipelineService, MessagingService and WebhookDispatcher
// over a directory tree:
//
//	<root>/<org>/catalog.json
//	<root>/<org>/subjects/<subject>.json
type Service struct {
	root   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewService creates a local collaborator service rooted at dir.
func NewService(root string, logger *slog.Logger) *Service {
	return &Service{
		root:   root,
		logger: logger.With("module", "local_collaborators"),
	}
}

func (s *Service) subjectPath(organizationID, subjectID string) string {
	return filepath.Join(s.root, organizationID, "subjects", subjectID+".json")
}

func (s *Service) readSubject(organizationID, subjectID string) (*models.Subject, error) {
	data, err := os.ReadFile(s.subjectPath(organizationID, subjectID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("subject %s: %w", subjectID, ErrSubjectNotFound)
		}

		return nil, fmt.Errorf("failed to read subject %s: %w", subjectID, err)
	}

	var subject models.Subject
	if err := json.Unmarshal(data, &subject); err != nil {
		return nil, fmt.Errorf("corrupt subject file %s: %w", subjectID, err)
	}

	return &subject, nil
}

func (s *Service) writeSubject(subject *models.Subject) error {
	path := s.subjectPath(subject.OrganizationID, subject.ID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create subjects directory: %w", err)
	}

	data, err := json.MarshalIndent(subject, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal subject %s: %w", subject.ID, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write subject %s: %w", subject.ID, err)
	}

	return nil
}

func (s *Service) readCatalog(organizationID string) (*catalog, error) {
	data, err := os.ReadFile(filepath.Join(s.root, organizationID, "catalog.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &catalog{}, nil
		}

		return nil, fmt.Errorf("failed to read catalog for %s: %w", organizationID, err)
	}

	var cat catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("corrupt catalog for %s: %w", organizationID, err)
	}

	return &cat, nil
}

func (s *Service) GetSubject(_ context.Context, organizationID, subjectID string) (*models.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readSubject(organizationID, subjectID)
}

func (s *Service) MoveStage(_ context.Context, organizationID, subjectID, stageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject, err := s.readSubject(organizationID, subjectID)
	if err != nil {
		return err
	}

	if subject.StageID == stageID {
		return nil
	}

	subject.StageID = stageID

	return s.writeSubject(subject)
}

func (s *Service) AddTag(_ context.Context, organizationID, subjectID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject, err := s.readSubject(organizationID, subjectID)
	if err != nil {
		return err
	}

	if subject.HasTag(tagID) {
		return nil
	}

	subject.Tags = append(subject.Tags, tagID)

	return s.writeSubject(subject)
}

func (s *Service) RemoveTag(_ context.Context, organizationID, subjectID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject, err := s.readSubject(organizationID, subjectID)
	if err != nil {
		return err
	}

	if !subject.HasTag(tagID) {
		return nil
	}

	subject.Tags = slices.DeleteFunc(subject.Tags, func(t string) bool { return t == tagID })

	return s.writeSubject(subject)
}

func (s *Service) StageExists(_ context.Context, organizationID, stageID string) (bool, error) {
	cat, err := s.readCatalog(organizationID)
	if err != nil {
		return false, err
	}

	return slices.Contains(cat.Stages, stageID), nil
}

func (s *Service) TagExists(_ context.Context, organizationID, tagID string) (bool, error) {
	cat, err := s.readCatalog(organizationID)
	if err != nil {
		return false, err
	}

	return slices.Contains(cat.Tags, tagID), nil
}

func (s *Service) TemplateExists(_ context.Context, organizationID, templateID string) (bool, error) {
	cat, err := s.readCatalog(organizationID)
	if err != nil {
		return false, err
	}

	return slices.Contains(cat.Templates, templateID), nil
}

// SendTemplate logs the send instead of delivering mail.
func (s *Service) SendTemplate(ctx context.Context, organizationID, subjectID, templateID, subjectLine string) error {
	s.logger.InfoContext(ctx, "Would send email",
		"organization_id", organizationID,
		"subject_id", subjectID,
		"template_id", templateID,
		"subject_line", subjectLine)

	return nil
}

func (s *Service) EndpointExists(_ context.Context, organizationID, endpointID string) (bool, error) {
	cat, err := s.readCatalog(organizationID)
	if err != nil {
		return false, err
	}

	return slices.Contains(cat.Endpoints, endpointID), nil
}

// Deliver logs the delivery instead of calling the endpoint.
func (s *Service) Deliver(ctx context.Context, organizationID, endpointID string, payload map[string]any) error {
	s.logger.InfoContext(ctx, "Would deliver webhook",
		"organization_id", organizationID,
		"endpoint_id", endpointID,
		"payload_keys", len(payload))

	return nil
}
