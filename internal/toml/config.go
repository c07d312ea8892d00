package toml

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/glauth/iamldap/internal/awscfg"
	"github.com/glauth/iamldap/pkg/config"
)

// objectGetter is the part of the S3 client used to fetch a config file
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var newObjectGetter = func(ctx context.Context, cfg config.AWS) (objectGetter, error) {
	awsCfg, err := awscfg.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := awscfg.Endpoint(cfg); endpoint != nil {
			o.BaseEndpoint = endpoint
			o.UsePathStyle = true
		}
	}), nil
}

// NewConfig reads the config file, if any, then applies the environment and
// the cli flags on top of it.
func NewConfig(location string, args map[string]interface{}) (*config.Config, error) {
	// Parse config-file into config{} struct
	cfg, err := parseConfigFile(location, args)
	if err != nil {
		return nil, err
	}

	// Environment of container style deployments
	cfg, err = handleEnv(cfg)
	if err != nil {
		return nil, err
	}

	// Handle parsed flags
	cfg, err = handleArgs(cfg, args)
	if err != nil {
		return nil, err
	}

	cfg, err = validateConfig(cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsRemote reports whether a config location is fetched from S3
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "s3://")
}

func parseConfigFile(configFileLocation string, args map[string]interface{}) (*config.Config, error) {
	cfg := new(config.Config)
	cfg.ConfigFile = configFileLocation

	if configFileLocation == "" {
		log.Debug().Msg("no config file given, using environment and flags only")
		return cfg, nil
	}

	// parse the config file
	if IsRemote(configFileLocation) {
		tomlData, err := fetchS3(context.Background(), configFileLocation, awsFromArgs(args))
		if err != nil {
			return cfg, err
		}
		if _, err := toml.Decode(string(tomlData), cfg); err != nil {
			return cfg, err
		}
		cfg.ConfigFile = configFileLocation
		return cfg, nil
	}

	// local config file
	fInfo, err := os.Stat(configFileLocation)
	if err != nil {
		return cfg, fmt.Errorf("non-existent config path: %s", configFileLocation)
	}

	if fInfo.IsDir() { // multiple files in a directory
		rawCfgStruct := make(map[string]interface{})

		files, _ := os.ReadDir(configFileLocation)
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".toml" {
				continue
			}
			canonicalName := filepath.Join(configFileLocation, f.Name())

			bs, err := os.ReadFile(canonicalName)
			if err != nil {
				return cfg, err
			}
			var curRawCfgStruct interface{}
			if err := toml.Unmarshal(bs, &curRawCfgStruct); err != nil {
				return cfg, fmt.Errorf("%s: %w", canonicalName, err)
			}
			if err = mergeConfigs(&rawCfgStruct, curRawCfgStruct); err != nil {
				return cfg, err
			}
		}

		destbuf := new(bytes.Buffer)
		if err := toml.NewEncoder(destbuf).Encode(rawCfgStruct); err != nil {
			return cfg, err
		}
		merged := config.Config{}
		if _, err = toml.Decode(destbuf.String(), &merged); err != nil {
			return cfg, err
		}
		cfg = &merged
	} else {
		if _, err = toml.DecodeFile(configFileLocation, cfg); err != nil {
			return cfg, err
		}
	}

	cfg.ConfigFile = configFileLocation
	return cfg, nil
}

func awsFromArgs(args map[string]interface{}) config.AWS {
	c := config.AWS{}
	if region, ok := os.LookupEnv("AWS_REGION"); ok {
		c.Region = region
	}
	if region, ok := args["-r"].(string); ok && region != "" {
		c.Region = region
	}
	if key, ok := args["-K"].(string); ok {
		c.AccessKeyID = key
	}
	if secret, ok := args["-S"].(string); ok {
		c.SecretAccessKey = secret
	}
	if endpoint, ok := args["--aws_endpoint_url"].(string); ok {
		c.Endpoint = endpoint
	}
	return c
}

func parseS3URL(location string) (bucket string, key string, err error) {
	s3url := strings.TrimPrefix(location, "s3://")
	parts := strings.SplitN(s3url, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL: %s", s3url)
	}
	return parts[0], parts[1], nil
}

func fetchS3(ctx context.Context, location string, awsCfg config.AWS) ([]byte, error) {
	bucket, key, err := parseS3URL(location)
	if err != nil {
		return nil, err
	}

	client, err := newObjectGetter(ctx, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS configuration: %w", err)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch %s: %w", location, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func mergeConfigs(config1 interface{}, config2 interface{}) error {
	var merger func(int, string, interface{}, interface{}) error
	merger = func(depth int, keyName string, cfg1 interface{}, cfg2 interface{}) error {
		switch element2 := cfg2.(type) {
		case map[string]interface{}:
			element1, ok := cfg1.(*map[string]interface{})
			if !ok {
				return fmt.Errorf("config dest: %s is not a map", keyName)
			}
			for k := range element2 {
				existing, ok := (*element1)[k]
				if !ok {
					(*element1)[k] = element2[k]
					continue
				}
				asamapptr, ok := existing.(map[string]interface{})
				if !ok {
					return fmt.Errorf("config: %s is defined more than once", k)
				}
				if err := merger(depth+1, k, &asamapptr, element2[k]); err != nil {
					return err
				}
				(*element1)[k] = asamapptr
			}
		case string, bool, int64, float64, nil:
		default:
			log.Info().Str("type", reflect.TypeOf(element2).String()).Msg("Unknown element type found in configuration file. Ignoring.")
		}
		return nil
	}

	return merger(0, "TOP", config1, config2)
}

func envInt(name string) (*int, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer: %q", name, raw)
	}
	return &v, nil
}

func handleEnv(cfg *config.Config) (*config.Config, error) {
	if secret, ok := os.LookupEnv("SECRET"); ok && secret != "" {
		cfg.Bind.Secret = secret
	}
	if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" {
		cfg.AWS.Region = region
	}
	if domain, ok := os.LookupEnv("DOMAIN"); ok && domain != "" {
		cfg.Directory.Domain = domain
		cfg.Directory.BaseDN = ""
	}
	if group, ok := os.LookupEnv("GROUP_NAME"); ok && group != "" {
		cfg.Directory.GroupName = group
	}
	if port, ok := os.LookupEnv("PORT"); ok && port != "" {
		cfg.LDAP.Enabled = true
		cfg.LDAP.Listen = port
	}

	uid, err := envInt("REQUIRE_UID")
	if err != nil {
		return cfg, err
	}
	if uid != nil {
		cfg.Directory.RequireUID = uid
	}

	gid, err := envInt("REQUIRE_GID")
	if err != nil {
		return cfg, err
	}
	if gid != nil {
		cfg.Directory.RequireGID = gid
	}

	defaultGID, err := envInt("DEFAULT_GID")
	if err != nil {
		return cfg, err
	}
	if defaultGID != nil {
		cfg.Directory.DefaultGID = *defaultGID
	}

	return cfg, nil
}

func handleArgs(cfg *config.Config, args map[string]interface{}) (*config.Config, error) {
	// LDAP flags
	if ldap, ok := args["--ldap"].(string); ok && ldap != "" {
		cfg.LDAP.Enabled = true
		cfg.LDAP.Listen = ldap
	}

	// LDAPS flags
	if ldaps, ok := args["--ldaps"].(string); ok && ldaps != "" {
		cfg.LDAPS.Enabled = true
		cfg.LDAPS.Listen = ldaps
	}
	if ldapsCert, ok := args["--ldaps-cert"].(string); ok && ldapsCert != "" {
		cfg.LDAPS.Cert = ldapsCert
	}
	if ldapsKey, ok := args["--ldaps-key"].(string); ok && ldapsKey != "" {
		cfg.LDAPS.Key = ldapsKey
	}

	// Directory flags
	if group, ok := args["--group"].(string); ok && group != "" {
		cfg.Directory.GroupName = group
	}
	if domain, ok := args["--domain"].(string); ok && domain != "" {
		cfg.Directory.Domain = domain
		cfg.Directory.BaseDN = ""
	}

	// AWS flags
	if region, ok := args["-r"].(string); ok && region != "" {
		cfg.AWS.Region = region
	}
	if key, ok := args["-K"].(string); ok && key != "" {
		cfg.AWS.AccessKeyID = key
	}
	if secret, ok := args["-S"].(string); ok && secret != "" {
		cfg.AWS.SecretAccessKey = secret
	}
	if endpoint, ok := args["--aws_endpoint_url"].(string); ok && endpoint != "" {
		cfg.AWS.Endpoint = endpoint
	}

	return cfg, nil
}

func validateConfig(cfg *config.Config) (*config.Config, error) {
	if !cfg.LDAP.Enabled && !cfg.LDAPS.Enabled {
		if cfg.LDAP.Listen != "" || cfg.LDAPS.Listen != "" {
			return cfg, fmt.Errorf("no server configuration found: please enable either LDAP or LDAPS")
		}
		cfg.LDAP.Enabled = true
		cfg.LDAP.Listen = config.DefaultPort
	}

	if cfg.LDAPS.Enabled {
		// LDAPS enabled - verify requirements (cert, key, listen)
		if len(cfg.LDAPS.Cert) == 0 || len(cfg.LDAPS.Key) == 0 {
			return cfg, fmt.Errorf("LDAPS was enabled but no certificate or key were specified: please disable LDAPS or use the 'cert' and 'key' options")
		}

		if len(cfg.LDAPS.Listen) == 0 {
			return cfg, fmt.Errorf("no LDAPS bind address was specified: please disable LDAPS or use the 'listen' option")
		}

		if config.IsLocalSocket(cfg.LDAPS.Listen) {
			return cfg, fmt.Errorf("LDAPS must listen on a network address, not %s", cfg.LDAPS.Listen)
		}

		if cfg.LDAP.Enabled && config.IsLocalSocket(cfg.LDAP.Listen) {
			return cfg, fmt.Errorf("LDAPS cannot be combined with a unix socket LDAP listener: peer credentials and root binds are exclusive")
		}
	}

	if cfg.LDAP.Enabled {
		// LDAP enabled - verify listen
		if len(cfg.LDAP.Listen) == 0 {
			return cfg, fmt.Errorf("no LDAP bind address was specified: please disable LDAP or use the 'listen' option")
		}
		if _, err := config.ParseSocketMode(cfg.LDAP.SocketMode); err != nil {
			return cfg, err
		}
	}

	if cfg.Directory.BaseDN == "" {
		cfg.Directory.BaseDN = config.DomainToBaseDN(cfg.Directory.Domain)
	}
	if cfg.Directory.BaseDN == "" {
		return cfg, fmt.Errorf("no base DN: please set 'domain' or 'basedn' in [directory], DOMAIN or --domain")
	}
	cfg.Directory.BaseDN = strings.ToLower(cfg.Directory.BaseDN)

	if cfg.Directory.GroupName == "" {
		log.Warn().Msg("no IAM group configured, every search will be answered as unavailable")
	}
	if cfg.Directory.DefaultGID == 0 {
		cfg.Directory.DefaultGID = config.DefaultGID
	}
	if cfg.Directory.LoginShell == "" {
		cfg.Directory.LoginShell = config.DefaultLoginShell
	}
	if cfg.Directory.HomePrefix == "" {
		cfg.Directory.HomePrefix = config.DefaultHomePrefix
	}
	if cfg.Directory.MaxPages <= 0 {
		cfg.Directory.MaxPages = config.DefaultMaxPages
	}

	// a local socket without requirements is reserved to the account running the server
	if cfg.LDAP.Enabled && config.IsLocalSocket(cfg.LDAP.Listen) &&
		cfg.Directory.RequireUID == nil && cfg.Directory.RequireGID == nil {
		uid, gid := os.Getuid(), os.Getgid()
		cfg.Directory.RequireUID = &uid
		cfg.Directory.RequireGID = &gid
		log.Warn().
			Int("requireuid", uid).
			Int("requiregid", gid).
			Str("socket", cfg.LDAP.Listen).
			Msg("no requireuid or requiregid set, admitting local peers running as the server uid or gid")
	}

	return cfg, nil
}
