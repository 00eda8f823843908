package domain

import "time"

type Participant struct {
	ID          string     `db:"id"`
	MeetingID   string     `db:"meeting_id"`
	UserID      string     `db:"user_id"`
	JoinedAt    time.Time  `db:"joined_at"`
	LeftAt      *time.Time `db:"left_at"` // nil = active
	MicOn       bool       `db:"is_mic_on"`
	CameraOn    bool       `db:"is_camera_on"`
	ScreenShare bool       `db:"is_screen_share"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func (p *Participant) Active() bool {
	return p.LeftAt == nil
}

// MediaUpdate is a partial set of media flags. Nil fields are left untouched.
type MediaUpdate struct {
	MicOn       *bool `json:"isMicOn,omitempty"`
	CameraOn    *bool `json:"isCameraOn,omitempty"`
	ScreenShare *bool `json:"isScreenShare,omitempty"`
}

// Empty reports whether the update carries no flags at all.
func (u MediaUpdate) Empty() bool {
	return u.MicOn == nil && u.CameraOn == nil && u.ScreenShare == nil
}

// MeetingStats — агрегаты по встрече.
type MeetingStats struct {
	TotalJoined   int    `json:"totalJoined"`
	Active        int    `json:"active"`
	MicOn         int    `json:"micOn"`
	CameraOn      int    `json:"cameraOn"`
	ScreenSharer  string `json:"screenSharer,omitempty"` // userID, empty if nobody shares
	ScreenSharing bool   `json:"screenSharing"`
}
