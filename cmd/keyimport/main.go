package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/betbot/nadsniper/pkg/secretstore"
	"github.com/betbot/nadsniper/pkg/wallet"
)

func main() {
	var (
		dbPath    = flag.String("badger", getenv("SNIPER_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("SNIPER_SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		keyFile   = flag.String("private-key-file", "", "import a hex private key from this file")
		mnemonic  = flag.Bool("mnemonic", false, "read a BIP-39 mnemonic from stdin instead of a private key")
		path      = flag.String("derivation-path", "", "derivation path used to validate the mnemonic (default m/44'/60'/0'/0/0)")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set SNIPER_SECRET_KEY or pass -secret-key"))
	}

	entry, addr, err := readSecret(*keyFile, *mnemonic, *path, os.Stdin)
	if err != nil {
		fatal(err)
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	if err := ss.SetString(entry.key, entry.value); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "已写入 %s 到 badger：%s（地址 %s）\n", entry.key, *dbPath, addr)
}

type secretEntry struct {
	key   string
	value string
}

// readSecret 读取并校验待导入的私钥或助记词，返回对应地址
func readSecret(keyFile string, isMnemonic bool, derivationPath string, stdin io.Reader) (secretEntry, string, error) {
	var raw string
	if keyFile != "" {
		b, err := os.ReadFile(keyFile)
		if err != nil {
			return secretEntry{}, "", err
		}
		raw = string(b)
	} else {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return secretEntry{}, "", err
		}
		raw = line
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return secretEntry{}, "", fmt.Errorf("nothing to import")
	}

	if isMnemonic {
		s, err := wallet.FromMnemonic(raw, derivationPath)
		if err != nil {
			return secretEntry{}, "", err
		}
		return secretEntry{key: secretstore.KeyMnemonic, value: raw}, s.Address.Hex(), nil
	}
	s, err := wallet.FromHex(raw)
	if err != nil {
		return secretEntry{}, "", err
	}
	return secretEntry{key: secretstore.KeyPrivateKey, value: strings.TrimPrefix(raw, "0x")}, s.Address.Hex(), nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
