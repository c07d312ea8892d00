package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	docopt "github.com/docopt/docopt-go"
	"github.com/fsnotify/fsnotify"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"

	"github.com/glauth/iamldap/internal/monitoring"
	_tls "github.com/glauth/iamldap/internal/tls"
	"github.com/glauth/iamldap/internal/toml"
	"github.com/glauth/iamldap/internal/tracing"
	"github.com/glauth/iamldap/internal/version"
	"github.com/glauth/iamldap/pkg/assets"
	"github.com/glauth/iamldap/pkg/config"
	"github.com/glauth/iamldap/pkg/frontend"
	"github.com/glauth/iamldap/pkg/iam"
	"github.com/glauth/iamldap/pkg/logging"
	"github.com/glauth/iamldap/pkg/secret"
	"github.com/glauth/iamldap/pkg/server"
	"github.com/glauth/iamldap/pkg/stats"
)

const programName = "iamldap"

var usage = `iamldap: serve the members of an AWS IAM group as POSIX accounts over LDAP

Usage:
  iamldap [options]
  iamldap -h --help
  iamldap --version

Options:
  -c, --config <file>       Config file or directory, or s3://bucket/key.
  -K <aws_key_id>           AWS Key ID.
  -S <aws_secret_key>       AWS Secret Key.
  -r <aws_region>           AWS Region.
  --aws_endpoint_url <url>  Custom AWS endpoint for IAM and S3.
  --ldap <address>          Listen address for the LDAP server: port, host:port or unix socket path.
  --ldaps <address>         Listen address for the LDAPS server.
  --ldaps-cert <cert-file>  Path to cert file for the LDAPS server.
  --ldaps-key <key-file>    Path to key file for the LDAPS server.
  --group <name>            IAM group whose members are served.
  --domain <domain>         Domain the base DN is derived from.
  --check-config            Check configuration and exit.
  -h, --help                Show this screen.
  --version                 Show version.
`

var (
	log  zerolog.Logger
	args map[string]interface{}

	parser = &docopt.Parser{HelpHandler: docopt.PrintHelpAndExit}

	configLock   sync.RWMutex
	activeConfig = &config.Config{}
)

func main() {
	var err error

	if args, err = parseArgs(os.Args[1:]); err != nil {
		fmt.Println("Could not parse command-line arguments")
		fmt.Println(err)
		os.Exit(1)
	}
	checkConfig, _ := args["--check-config"].(bool)

	cfg, err := toml.NewConfig(getConfigLocation(), args)
	if err != nil {
		fmt.Println("Configuration error")
		fmt.Println(err)
		os.Exit(1)
	}

	if checkConfig {
		fmt.Println("Configuration seems ok")
		return
	}

	if err := copier.CopyWithOption(activeConfig, cfg, copier.Option{DeepCopy: true}); err != nil {
		fmt.Println("Could not apply configuration")
		fmt.Println(err)
		os.Exit(1)
	}

	log = logging.InitLogging(activeConfig.Debug, activeConfig.Syslog, activeConfig.StructuredLog)

	if cfg.Debug {
		log.Info().Msg("Debugging enabled")
	}
	if cfg.Syslog {
		log.Info().Msg("Syslog enabled")
	}

	log.Info().Str("program", programName).Str("version", version.Version).Msg("AP start")

	startService()
}

func startService() {
	// stats
	stats.General.Set("version", stats.Stringer(version.Version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rootSecret, err := secret.New(activeConfig.Bind.Secret, activeConfig.Bind.SecretBcrypt)
	if err != nil {
		log.Error().Err(err).Msg("could not set up the bind secret")
		os.Exit(1)
	}
	if rootSecret.Generated() {
		log.Info().Str("secret", rootSecret.Plain()).Msg("using secret")
	}

	client, err := iam.NewAWSClient(ctx, activeConfig.AWS)
	if err != nil {
		log.Error().Err(err).Msg("could not create IAM client")
		os.Exit(1)
	}

	// web API
	if activeConfig.API.Enabled {
		log.Info().Bool("internals", activeConfig.API.Internals).Msg("Web API enabled")

		go frontend.RunAPI(
			frontend.Logger(log),
			frontend.Config(&activeConfig.API),
			frontend.Status(status),
			frontend.Context(ctx),
		)
	}

	monitor := monitoring.NewMonitor(&log)
	tracer := tracing.NewTracer(
		tracing.NewConfig(
			activeConfig.Tracing.Enabled,
			activeConfig.Tracing.GRPCEndpoint,
			activeConfig.Tracing.HTTPEndpoint,
			&log,
		),
	)

	var ldapstlsConfig *tls.Config
	if c := activeConfig.LDAPS; c.Enabled {
		ldapstlsConfig, err = _tls.MakeTLSFromFiles(c.Cert, c.Key, c.LegacyTLS)
		if err != nil {
			log.Error().Err(err).Msg("unable to configure TLS for LDAPS")
			os.Exit(1)
		}
	}

	s, err := server.NewServer(
		server.Logger(log),
		server.Config(activeConfig),
		server.Secret(rootSecret),
		server.Client(client),
		server.LDAPSTLSConfig(ldapstlsConfig),
		server.Monitor(monitor),
		server.Tracer(tracer),
		server.Context(ctx),
	)
	if err != nil {
		log.Error().Err(err).Msg("could not create server")
		os.Exit(1)
	}

	startConfigWatcher(s)

	if activeConfig.LDAP.Enabled {
		go func() {
			if err := s.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("could not start LDAP server")
				os.Exit(1)
			}
		}()
	}

	if activeConfig.LDAPS.Enabled {
		go func() {
			if err := s.ListenAndServeTLS(); err != nil {
				log.Error().Err(err).Msg("could not start LDAPS server")
				os.Exit(1)
			}
		}()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block until we receive our signal.
	<-c

	s.Shutdown()
	cancel()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := tracer.Shutdown(flushCtx); err != nil {
		log.Warn().Err(err).Msg("could not flush traces")
	}

	log.Info().Msg("AP exit")
}

// status feeds the index page of the web API
func status() assets.Status {
	configLock.RLock()
	defer configLock.RUnlock()

	st := assets.Status{
		Version:   version.Version,
		BaseDN:    activeConfig.Directory.BaseDN,
		Group:     activeConfig.Directory.GroupName,
		Internals: activeConfig.API.Internals,
	}
	if activeConfig.LDAP.Enabled {
		network, address := config.ListenAddress(activeConfig.LDAP.Listen)
		st.Listeners = append(st.Listeners, fmt.Sprintf("ldap %s %s", network, address))
	}
	if activeConfig.LDAPS.Enabled {
		_, address := config.ListenAddress(activeConfig.LDAPS.Listen)
		st.Listeners = append(st.Listeners, fmt.Sprintf("ldaps tcp %s", address))
	}
	return st
}

// reloadDirectory takes the directory settings of a freshly read configuration.
// The base DN is bound to the search route and only changes on restart.
func reloadDirectory(current *config.Config, fresh *config.Config) (config.Directory, error) {
	dir := config.Directory{}
	if err := copier.CopyWithOption(&dir, &fresh.Directory, copier.Option{DeepCopy: true}); err != nil {
		return current.Directory, err
	}

	if dir.BaseDN != current.Directory.BaseDN {
		log.Warn().Str("basedn", dir.BaseDN).Msg("base DN changes require a restart, keeping the current one")
		dir.BaseDN = current.Directory.BaseDN
		dir.Domain = current.Directory.Domain
	}

	current.Directory = dir
	return dir, nil
}

func startConfigWatcher(s *server.LdapSvc) {
	configFileLocation := getConfigLocation()
	if !activeConfig.WatchConfig || configFileLocation == "" || toml.IsRemote(configFileLocation) {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error().Err(err).Msg("could not start config-watcher")
		return
	}

	ticker := time.NewTicker(1 * time.Second)
	go func() {
		isChanged, isRemoved := false, false
		for {
			select {
			case event := <-watcher.Events:
				log.Info().Str("e", event.Op.String()).Msg("watcher got event")
				if event.Op&fsnotify.Write == fsnotify.Write {
					isChanged = true
				} else if event.Op&fsnotify.Remove == fsnotify.Remove { // vim edit file with rename/remove
					isChanged, isRemoved = true, true
				} else if event.Op&fsnotify.Create == fsnotify.Create { // only when watching a directory
					isChanged = true
				}
			case err := <-watcher.Errors:
				log.Error().Err(err).Msg("watcher error")
			case <-ticker.C:
				// wakeup, try finding removed config
			}
			if _, err := os.Stat(configFileLocation); !os.IsNotExist(err) && (isRemoved || isChanged) {
				if isRemoved {
					log.Info().Str("file", configFileLocation).Msg("rewatching config")
					watcher.Add(configFileLocation) // overwrite
					isChanged, isRemoved = true, false
				}
				if isChanged {
					cfg, err := toml.NewConfig(configFileLocation, args)

					if err != nil {
						log.Info().Err(err).Msg("Could not reload config. Holding on to old config")
					} else {
						configLock.Lock()
						dir, err := reloadDirectory(activeConfig, cfg)
						configLock.Unlock()

						if err != nil {
							log.Info().Err(err).Msg("Could not save reloaded config. Holding on to old config")
						} else {
							s.Reload(dir)
							log.Info().Msg("Config was reloaded")
						}
					}
					isChanged = false
				}
			}
		}
	}()

	watcher.Add(configFileLocation)
}

func parseArgs(argv []string) (map[string]interface{}, error) {
	opts, err := parser.ParseArgs(usage, argv, version.GetVersion())
	if err != nil {
		return nil, err
	}
	return opts, nil
}

func getConfigLocation() string {
	location, _ := args["--config"].(string)
	return location
}
