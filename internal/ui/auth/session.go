// Пакет auth — сессии веб-интерфейса.
// Данные сессии и флеш-сообщения хранятся в cookie,
// зашифрованных AES-256-GCM.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Имена cookie.
const (
	SessionCookieName = "md_session"
	FlashCookieName   = "md_flash"
)

// RememberMaxAge — срок сессии с флажком «запомнить меня».
const RememberMaxAge = 30 * 24 * 60 * 60

// flashMaxAge — флеш живёт до следующей страницы.
const flashMaxAge = 60

// SessionData — содержимое cookie сессии.
type SessionData struct {
	UserID int64 `json:"uid"`
	// Remember — постоянная cookie вместо сессионной
	Remember bool `json:"remember,omitempty"`
	// IssuedAt — время входа (Unix)
	IssuedAt int64 `json:"iat"`
}

// Категории флеш-сообщений.
const (
	FlashInfo    = "info"
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash — одноразовое сообщение для следующей страницы.
// Message — ключ перевода.
type Flash struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

// SessionManager шифрует сессию и флеш-сообщения в cookie.
type SessionManager struct {
	gcm    cipher.AEAD
	secure bool
	now    func() time.Time
}

// NewSessionManager создаёт менеджер сессий.
// key — base64 от 32 байт или произвольная строка (хешируется SHA-256).
// Пустой key даёт случайный ключ: сессии не переживают рестарт.
func NewSessionManager(key string, secure bool) (*SessionManager, error) {
	var keyBytes []byte
	switch decoded, err := base64.StdEncoding.DecodeString(key); {
	case key == "":
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
	case err == nil && len(decoded) == 32:
		keyBytes = decoded
	default:
		sum := sha256.Sum256([]byte(key))
		keyBytes = sum[:]
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &SessionManager{gcm: gcm, secure: secure, now: time.Now}, nil
}

// seal сериализует v в JSON и шифрует; nonce идёт перед шифртекстом.
func (sm *SessionManager) seal(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации cookie: %w", err)
	}
	nonce := make([]byte, sm.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sm.gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

// open расшифровывает значение cookie в v.
func (sm *SessionManager) open(value string, v any) error {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return fmt.Errorf("ошибка декодирования cookie: %w", err)
	}
	nonceSize := sm.gcm.NonceSize()
	if len(data) < nonceSize {
		return errors.New("зашифрованные данные слишком короткие")
	}
	plaintext, err := sm.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return fmt.Errorf("ошибка дешифрования cookie: %w", err)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("ошибка десериализации cookie: %w", err)
	}
	return nil
}

func (sm *SessionManager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Login записывает сессию пользователя.
func (sm *SessionManager) Login(w http.ResponseWriter, userID int64, remember bool) error {
	return sm.SetSessionCookie(w, &SessionData{
		UserID:   userID,
		Remember: remember,
		IssuedAt: sm.now().Unix(),
	})
}

// SetSessionCookie устанавливает cookie сессии.
// Без Remember cookie сессионная и исчезает при закрытии браузера.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, data *SessionData) error {
	value, err := sm.seal(data)
	if err != nil {
		return err
	}
	maxAge := 0
	if data.Remember {
		maxAge = RememberMaxAge
	}
	http.SetCookie(w, sm.cookie(SessionCookieName, value, maxAge))
	return nil
}

// GetSessionFromRequest возвращает сессию запроса.
// Возвращает nil, nil если cookie отсутствует.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*SessionData, error) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}
	var data SessionData
	if err := sm.open(c.Value, &data); err != nil {
		return nil, err
	}
	if data.Remember && sm.now().Unix()-data.IssuedAt > RememberMaxAge {
		return nil, errors.New("срок сессии истёк")
	}
	return &data, nil
}

// ClearSessionCookie удаляет cookie сессии (выход).
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, sm.cookie(SessionCookieName, "", -1))
}

// AddFlash добавляет сообщение к уже накопленным в запросе.
func (sm *SessionManager) AddFlash(w http.ResponseWriter, r *http.Request, category, message string) {
	flashes := sm.peekFlashes(r)
	flashes = append(flashes, Flash{Category: category, Message: message})
	value, err := sm.seal(flashes)
	if err != nil {
		return
	}
	c := sm.cookie(FlashCookieName, value, flashMaxAge)
	http.SetCookie(w, c)
	// Следующий AddFlash в том же запросе видит предыдущие сообщения
	r.AddCookie(c)
}

// PopFlashes возвращает сообщения и удаляет cookie.
func (sm *SessionManager) PopFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := sm.peekFlashes(r)
	if flashes != nil {
		http.SetCookie(w, sm.cookie(FlashCookieName, "", -1))
	}
	return flashes
}

func (sm *SessionManager) peekFlashes(r *http.Request) []Flash {
	var last *http.Cookie
	for _, c := range r.Cookies() {
		if c.Name == FlashCookieName {
			last = c
		}
	}
	if last == nil || last.Value == "" {
		return nil
	}
	var flashes []Flash
	if err := sm.open(last.Value, &flashes); err != nil {
		return nil
	}
	return flashes
}
