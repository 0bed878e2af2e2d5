package storage

import (
	"errors"
	"time"

	"userbotgo/backend/internal/models"

	"gorm.io/gorm"
)

// ListRules returns every rule ordered by (priority desc, created_at asc).
// This is the canonical evaluation order; the in-memory repository preserves
// it.
func (s *Service) ListRules() ([]models.Rule, error) {
	var rules []models.Rule
	err := s.DB.Order("priority desc, created_at asc").Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// CreateRule inserts a new rule.
func (s *Service) CreateRule(rule *models.Rule) error {
	return s.DB.Create(rule).Error
}

// SaveRule persists the full rule row.
func (s *Service) SaveRule(rule *models.Rule) error {
	return s.DB.Save(rule).Error
}

// DeleteRule removes a rule; deleting a missing rule is not an error.
func (s *Service) DeleteRule(id string) error {
	return s.DB.Delete(&models.Rule{}, "id = ?", id).Error
}

// IncrementRuleUsage atomically bumps the usage counter of a rule.
func (s *Service) IncrementRuleUsage(id string) error {
	return s.DB.Model(&models.Rule{}).Where("id = ?", id).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error
}

// CreateMedia inserts a media file record.
func (s *Service) CreateMedia(file *models.MediaFile) error {
	return s.DB.Create(file).Error
}

// GetMedia returns the media file or models.ErrNotFound.
func (s *Service) GetMedia(id string) (*models.MediaFile, error) {
	var file models.MediaFile
	err := s.DB.First(&file, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// ListMedia returns all media files, newest first.
func (s *Service) ListMedia() ([]models.MediaFile, error) {
	var files []models.MediaFile
	if err := s.DB.Order("uploaded_at desc").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// DeleteMedia removes a media record; the caller removes the bytes.
func (s *Service) DeleteMedia(id string) error {
	return s.DB.Delete(&models.MediaFile{}, "id = ?", id).Error
}

// IncrementMediaUsage atomically bumps the usage counter of a media file.
func (s *Service) IncrementMediaUsage(id string) error {
	return s.DB.Model(&models.MediaFile{}).Where("id = ?", id).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error
}

// AppendLog writes one activity log entry. Entries are append-only.
func (s *Service) AppendLog(entry *models.LogEntry) error {
	return s.DB.Create(entry).Error
}

// ListLogs returns activity log entries newest-first with skip/limit paging.
func (s *Service) ListLogs(skip, limit int) ([]models.LogEntry, error) {
	var entries []models.LogEntry
	err := s.DB.Order("timestamp desc").Offset(skip).Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Stats aggregates activity counters. SuccessRate is 0 when there are no
// entries, never a division by zero.
func (s *Service) Stats() (*models.ActivityStats, error) {
	stats := &models.ActivityStats{}

	if err := s.DB.Model(&models.LogEntry{}).Count(&stats.TotalResponses).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.LogEntry{}).Where("success = ?", true).
		Count(&stats.SuccessfulResponses).Error; err != nil {
		return nil, err
	}
	stats.FailedResponses = stats.TotalResponses - stats.SuccessfulResponses

	midnight := startOfDay(time.Now())
	if err := s.DB.Model(&models.LogEntry{}).Where("timestamp >= ?", midnight).
		Count(&stats.ResponsesToday).Error; err != nil {
		return nil, err
	}

	if stats.TotalResponses > 0 {
		stats.SuccessRate = float64(stats.SuccessfulResponses) / float64(stats.TotalResponses) * 100
	}
	return stats, nil
}

// GetSettings returns the single settings row, creating the default one on
// first access. The daily counter fields are filled from Redis.
func (s *Service) GetSettings() (*models.BotSettings, error) {
	var settings models.BotSettings
	err := s.DB.First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := models.DefaultSettings()
		if err := s.DB.Create(defaults).Error; err != nil {
			return nil, err
		}
		settings = *defaults
	} else if err != nil {
		return nil, err
	}

	if s.Redis != nil {
		count, err := s.DailyResponseCount()
		if err == nil {
			settings.DailyResponseCount = count
		}
	}
	settings.LastResetDate = dayKeySuffix(time.Now())
	return &settings, nil
}

// SaveSettings persists the settings row.
func (s *Service) SaveSettings(settings *models.BotSettings) error {
	return s.DB.Save(settings).Error
}
