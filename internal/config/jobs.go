package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"catalog-enricher/internal/models"
)

// JobsFile es el archivo yaml con un job por tienda
type JobsFile struct {
	Jobs []models.Job `yaml:"jobs"`
}

// LoadJobs lee y valida las definiciones de jobs
func LoadJobs(filename string) ([]models.Job, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var jf JobsFile
	if err := yaml.NewDecoder(file).Decode(&jf); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}

	seen := make(map[string]struct{}, len(jf.Jobs))
	for i := range jf.Jobs {
		if err := jf.Jobs[i].Validate(); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		if _, dup := seen[jf.Jobs[i].DBName]; dup {
			return nil, fmt.Errorf("job %d: %w: duplicate dbName %q", i, models.ErrInvalidJob, jf.Jobs[i].DBName)
		}
		seen[jf.Jobs[i].DBName] = struct{}{}
	}
	return jf.Jobs, nil
}

// FindJob busca el job de una tienda
func FindJob(jobs []models.Job, dbName string) (models.Job, bool) {
	for _, j := range jobs {
		if j.DBName == dbName {
			return j, true
		}
	}
	return models.Job{}, false
}
