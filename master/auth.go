package master

import (
	"bufio"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"gfs"
)

// Argon2id parameters for hashing entries in the auth table file,
// adapted from kluzzebass-gastrolog's internal/auth/password.go.
const (
	argonMemory  = 64 * 1024
	argonTime    = 3
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// loadAuthTable reads "username:password" lines from the configured auth
// file and stores an argon2id hash of each password, the master's
// at-rest representation of spec §3's auth_table.
func (m *Master) loadAuthTable() error {
	if !m.cfg.UseAuthentication {
		return nil
	}
	f, err := os.Open(m.cfg.AuthenticationFilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	m.meta.mu.Lock()
	defer m.meta.mu.Unlock()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			log.Warningf("skipping malformed auth line: %q", line)
			continue
		}
		hash, err := hashPassword(parts[1])
		if err != nil {
			return err
		}
		m.meta.authTable[parts[0]] = hash
	}
	return scanner.Err()
}

// verifyCredentials checks username/password against the in-memory
// auth table, loaded at startup.
func (m *Master) verifyCredentials(username, password string) (bool, error) {
	m.meta.mu.RLock()
	hash, ok := m.meta.authTable[username]
	m.meta.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return verifyPassword(password, hash)
}

// issueOTP generates a fresh random OTP for username, records it,
// propagates the updated metadata to the shadows, and returns it with its
// expiration.
func (m *Master) issueOTP(username string) (string, time.Time) {
	otp := uuid.NewString()
	expiration := time.Now().Add(m.cfg.OTPValidDuration())

	m.meta.mu.Lock()
	m.meta.activeOTPs[username] = gfs.OTPEntry{OTP: otp, Expiration: expiration}
	m.meta.seq++
	snap := m.meta.snapshotLocked()
	m.meta.mu.Unlock()

	m.propagate(snap)
	return otp, expiration
}

// hashPassword hashes a password using argon2id and returns a PHC-format
// string: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyPassword checks a password against an argon2id PHC-format hash.
func verifyPassword(password, encoded string) (bool, error) {
	salt, hash, memory, time_, threads, keyLen, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), salt, time_, memory, threads, keyLen)
	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

func parsePHC(encoded string) (salt, hash []byte, memory, time uint32, threads uint8, keyLen uint32, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, 0, 0, 0, 0, fmt.Errorf("invalid PHC format: expected 6 parts, got %d", len(parts))
	}
	if parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, 0, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, 0, fmt.Errorf("parse version: %w", err)
	}
	var mem, t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &t, &p); err != nil {
		return nil, nil, 0, 0, 0, 0, fmt.Errorf("parse params: %w", err)
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, 0, fmt.Errorf("decode salt: %w", err)
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, 0, 0, 0, 0, fmt.Errorf("decode hash: %w", err)
	}
	return salt, hash, mem, t, p, uint32(len(hash)), nil
}
