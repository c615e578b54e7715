// Package config provides configuration parsing and management for obaidx.
//
// # Overview
//
// Configuration is YAML decoded with gopkg.in/yaml.v3 on top of
// DefaultConfig. ${VAR} and ${VAR:-default} references are substituted
// from the environment before decoding, and unknown keys are rejected.
//
//	logging:
//	  level: info
//	backend:
//	  baseDN: dc=example,dc=com
//	  indexEntryLimit: 4000
//	indexes:
//	  - attribute: cn
//	    types: [equality, substring]
//	vlvIndexes:
//	  - name: byName
//	    baseDN: ou=people,dc=example,dc=com
//	    scope: sub
//	    filter: (objectClass=person)
//	    sortOrder: sn -givenName
//
// # Validation
//
// ValidateConfig returns every problem found as a ValidationError naming
// the offending field:
//
//	cfg, err := config.LoadConfig("obaidx.yaml")
//	if err != nil {
//	    return err
//	}
//	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
//	    return errs[0]
//	}
//
// # Hot Reload
//
// ConfigWatcher polls the file and calls OnChange with the previous and the
// new configuration after every valid change. Index entry limits and VLV
// index definitions can be applied to a running backend this way.
package config
