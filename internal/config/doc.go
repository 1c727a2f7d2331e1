// Package config defines configuration structures for the haul CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (HAUL_ prefix)
//   - YAML configuration file
//
// # File format
//
//	items:
//	  - url: https://example.com/images/base.iso
//	    dest: ~/images/base.iso
//	    digest: sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
//	  - url: s3://releases/tool.tar.gz?region=eu-west-1
//	    dest: /srv/tool.tar.gz
//	max_concurrent: 4
//	temp_dir: ~/.haul/partial
//	flush_threshold: 1MiB
//	rate_limit: 20MiB
//	chunk_timeout: 2s
//	progress: text
//	retry:
//	  initial_interval: 500ms
//	  max_elapsed_time: 5m
//
// Sizes accept SI and IEC suffixes. Paths starting with "~" are expanded.
package config
