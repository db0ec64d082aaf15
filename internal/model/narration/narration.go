package narration

import "time"

// Config 旁白语音服务配置
type Config struct {
	Endpoint     string        `json:"endpoint"`     // TTS HTTP endpoint
	APIKey       string        `json:"apiKey"`       // API credential, empty disables narration
	APIKeyHeader string        `json:"apiKeyHeader"` // header carrying the credential
	VoiceID      string        `json:"voiceId"`      // default voice
	Timeout      time.Duration `json:"timeout"`
}

// Request 旁白合成请求
type Request struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
}

// Response 旁白合成响应
type Response struct {
	Audio       []byte    `json:"-"`
	ContentType string    `json:"contentType"`
	VoiceID     string    `json:"voiceId"`
	RequestID   string    `json:"requestId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Extension guesses a file extension from the audio content type.
func (r *Response) Extension() string {
	switch r.ContentType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/ogg":
		return "ogg"
	case "audio/aac":
		return "aac"
	default:
		return "mp3"
	}
}
