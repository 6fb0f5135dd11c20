package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	cfg := fromViper(newTestViper())

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "10:00", cfg.Attendance.WindowStart)
	assert.Equal(t, "10:10", cfg.Attendance.WindowEnd)
	assert.Equal(t, 100, cfg.Points.Baseline)
	assert.Equal(t, 2*time.Minute, cfg.Leaderboard.CacheTTL)
	assert.Equal(t, EmailProviderLog, cfg.Notifications.Provider)
	assert.Equal(t, int64(5*1024*1024), cfg.Attendance.MaxUploadBytes)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("POINTS_BASELINE", "50")
	t.Setenv("EMAIL_PROVIDER", "SendGrid")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("JWT_EXPIRATION", "not-a-duration")

	cfg := fromViper(newTestViper())

	assert.Equal(t, 50, cfg.Points.Baseline)
	assert.Equal(t, EmailProviderSendgrid, cfg.Notifications.Provider)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
}

func TestUnknownProviderFallsBackToLog(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER", "carrier-pigeon")
	cfg := fromViper(newTestViper())
	assert.Equal(t, EmailProviderLog, cfg.Notifications.Provider)
}

func TestAttendanceLocation(t *testing.T) {
	assert.Equal(t, time.UTC, AttendanceConfig{}.Location())
	assert.Equal(t, time.UTC, AttendanceConfig{Timezone: "Nowhere/Invalid"}.Location())
	assert.Equal(t, "Asia/Kolkata", AttendanceConfig{Timezone: "Asia/Kolkata"}.Location().String())
}

func TestAttendanceExclusionsAndUploadDir(t *testing.T) {
	t.Setenv("ATTENDANCE_EXCLUDED_TERMS", "Recorder, OTTER ,")
	t.Setenv("ATTENDANCE_UPLOAD_DIR", "/var/lib/batch-admin/uploads")

	cfg := fromViper(newTestViper())

	assert.Equal(t, []string{"recorder", "otter"}, cfg.Attendance.ExcludedTerms)
	assert.Equal(t, "/var/lib/batch-admin/uploads", cfg.Attendance.UploadDir)
}

func TestAttendanceExclusionsDefaultToBuiltIn(t *testing.T) {
	cfg := fromViper(newTestViper())
	assert.Nil(t, cfg.Attendance.ExcludedTerms)
	assert.Equal(t, "./uploads", cfg.Attendance.UploadDir)
}
