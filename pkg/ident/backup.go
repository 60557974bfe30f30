package ident

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// Backup-code alphabet excludes 0/O/1/I to survive transcription.
const backupAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const (
	// BackupCodeCount codes are issued per set.
	BackupCodeCount = 10
	backupCodeLen   = 8
)

// NewBackupCodes returns a fresh set of display-formatted codes
// ("XXXX-XXXX") and the SHA-256 hex hashes of their normalized forms. Only
// the hashes are ever persisted.
func NewBackupCodes() (codes []string, hashes []string, err error) {
	codes = make([]string, 0, BackupCodeCount)
	hashes = make([]string, 0, BackupCodeCount)
	for i := 0; i < BackupCodeCount; i++ {
		raw := make([]byte, backupCodeLen)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("backup code entropy: %w", err)
		}
		var sb strings.Builder
		for _, b := range raw {
			sb.WriteByte(backupAlphabet[int(b)%len(backupAlphabet)])
		}
		code := sb.String()
		codes = append(codes, code[:4]+"-"+code[4:])
		hashes = append(hashes, HashBackupCode(code))
	}
	return codes, hashes, nil
}

// NormalizeBackupCode uppercases and strips dashes so user input matches the
// stored hash regardless of formatting.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

// HashBackupCode returns the SHA-256 hex digest of the normalized code.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(NormalizeBackupCode(code)))
	return hex.EncodeToString(sum[:])
}

// VerifyBackupCode checks code against the stored hashes in constant time per
// candidate. On a match it returns true and the remaining hashes with the
// matched one removed; a code verifies at most once.
func VerifyBackupCode(code string, hashes []string) (bool, []string) {
	target := HashBackupCode(code)
	matched := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(h), []byte(target)) == 1 && matched == -1 {
			matched = i
		}
	}
	if matched == -1 {
		return false, hashes
	}
	remaining := make([]string, 0, len(hashes)-1)
	remaining = append(remaining, hashes[:matched]...)
	remaining = append(remaining, hashes[matched+1:]...)
	return true, remaining
}
