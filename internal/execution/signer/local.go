package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
)

const (
	EnvPrivateKey           = "BERA_PRIVATE_KEY"
	EnvPrivateKeyFile       = "BERA_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "BERA_KEYSTORE_PATH"
	EnvKeystorePassword     = "BERA_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "BERA_KEYSTORE_PASSWORD_FILE"

	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"

	defaultPrivateKeyRelativePath = "bera-mcp/key.hex"
	defaultPrivateKeyHintPath     = "~/.config/bera-mcp/key.hex"
)

type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
}

// Credentials names where a signing key may come from. Empty fields are
// filled from the BERA_* environment by FromEnv.
type Credentials struct {
	Source               string
	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
}

// FromEnv fills unset credential fields from the environment and the default
// key file, then narrows them to the selected source.
func FromEnv(c Credentials) (Credentials, error) {
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	if c.Source == "" {
		c.Source = KeySourceAuto
	}
	// An explicit key always wins, whatever the source says.
	if strings.TrimSpace(c.PrivateKeyHex) != "" {
		return Credentials{Source: c.Source, PrivateKeyHex: strings.TrimSpace(c.PrivateKeyHex)}, nil
	}
	fill := func(dst *string, env string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = strings.TrimSpace(os.Getenv(env))
		}
	}
	fill(&c.PrivateKeyHex, EnvPrivateKey)
	fill(&c.PrivateKeyFile, EnvPrivateKeyFile)
	fill(&c.KeystorePath, EnvKeystorePath)
	fill(&c.KeystorePassword, EnvKeystorePassword)
	fill(&c.KeystorePasswordFile, EnvKeystorePasswordFile)
	if c.PrivateKeyFile == "" {
		c.PrivateKeyFile = discoverDefaultPrivateKeyFile()
	}

	switch c.Source {
	case KeySourceAuto:
	case KeySourceEnv:
		c.PrivateKeyFile, c.KeystorePath, c.KeystorePassword, c.KeystorePasswordFile = "", "", "", ""
	case KeySourceFile:
		c.PrivateKeyHex, c.KeystorePath, c.KeystorePassword, c.KeystorePasswordFile = "", "", "", ""
	case KeySourceKeystore:
		c.PrivateKeyHex, c.PrivateKeyFile = "", ""
	default:
		return Credentials{}, clierr.New(clierr.CodeConfiguration, fmt.Sprintf("unsupported key source %q (expected %s|%s|%s|%s)", c.Source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore))
	}
	return c, nil
}

// Load resolves credentials and builds a local signer. Every failure is a
// configuration error.
func Load(c Credentials) (*LocalSigner, error) {
	resolved, err := FromEnv(c)
	if err != nil {
		return nil, err
	}
	pk, err := loadPrivateKey(resolved)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfiguration, "load signing key", err)
	}
	return fromKey(pk)
}

func fromKey(pk *ecdsa.PrivateKey) (*LocalSigner, error) {
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, clierr.New(clierr.CodeConfiguration, "invalid ECDSA public key")
	}
	return &LocalSigner{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}

func loadPrivateKey(c Credentials) (*ecdsa.PrivateKey, error) {
	if c.PrivateKeyHex != "" {
		return parseHexKey(c.PrivateKeyHex)
	}
	if c.PrivateKeyFile != "" {
		buf, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	}
	if c.KeystorePath != "" {
		password := c.KeystorePassword
		if password == "" && c.KeystorePasswordFile != "" {
			buf, err := os.ReadFile(c.KeystorePasswordFile)
			if err != nil {
				return nil, fmt.Errorf("read keystore password file: %w", err)
			}
			password = strings.TrimSpace(string(buf))
		}
		if password == "" {
			return nil, fmt.Errorf("keystore password is required")
		}
		buf, err := os.ReadFile(c.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("read keystore file: %w", err)
		}
		key, err := keystore.DecryptKey(buf, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore: %w", err)
		}
		return key.PrivateKey, nil
	}
	return nil, fmt.Errorf("missing signing key: set %s, put a key at %s, set %s, or pass --private-key", EnvPrivateKey, defaultPrivateKeyHintPath, EnvKeystorePath)
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

func defaultPrivateKeyPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, defaultPrivateKeyRelativePath)
}

func discoverDefaultPrivateKeyFile() string {
	path := defaultPrivateKeyPath()
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}
