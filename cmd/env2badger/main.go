package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/betbot/ladderquote/pkg/secretstore"
)

// 把 .env 中的凭证导入加密的 badger，之后 quoter 通过 LADDER_SECRET_DB/LADDER_SECRET_KEY 读取
func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path")
		dbPath    = flag.String("badger", getenv("LADDER_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("LADDER_SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		prefix    = flag.String("prefix", "env/", "key prefix inside badger")
		only      = flag.String("only", "", "comma separated keys to import (default: all)")
		list      = flag.Bool("list", false, "list keys stored under prefix and exit")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set LADDER_SECRET_KEY or pass -secret-key"))
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
		ReadOnly:      *list,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	if *list {
		keys, err := ss.Keys(*prefix)
		if err != nil {
			fatal(err)
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return
	}

	kv, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(err)
	}
	kv = filterKeys(kv, *only)

	prefixed := make(map[string]string, len(kv))
	for k, v := range kv {
		prefixed[*prefix+k] = v
	}
	if err := ss.SetMany(prefixed); err != nil {
		fatal(err)
	}

	names := make([]string, 0, len(kv))
	for k := range kv {
		names = append(names, k)
	}
	sort.Strings(names)
	fmt.Fprintf(os.Stderr, "已导入 %d 项到 badger：%s（前缀 %s）: %s\n", len(kv), *dbPath, *prefix, strings.Join(names, ","))
}

func filterKeys(kv map[string]string, only string) map[string]string {
	only = strings.TrimSpace(only)
	if only == "" {
		return kv
	}
	out := map[string]string{}
	for _, k := range strings.Split(only, ",") {
		k = strings.TrimSpace(k)
		if v, ok := kv[k]; ok {
			out[k] = v
		}
	}
	return out
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
