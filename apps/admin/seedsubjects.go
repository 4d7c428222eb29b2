package main

import (
	"context"

	"github.com/trezcool/darasa/core/catalog"
)

var defaultSubjects = []catalog.Subject{
	{Name: "Mathematics", Category: "STEM", IsActive: true},
	{Name: "Physics", Category: "STEM", IsActive: true},
	{Name: "Chemistry", Category: "STEM", IsActive: true},
	{Name: "Biology", Category: "STEM", IsActive: true},
	{Name: "Computer Science", Category: "STEM", IsActive: true},
	{Name: "English", Category: "Languages", IsActive: true},
	{Name: "French", Category: "Languages", IsActive: true},
	{Name: "Swahili", Category: "Languages", IsActive: true},
	{Name: "History", Category: "Humanities", IsActive: true},
	{Name: "Geography", Category: "Humanities", IsActive: true},
	{Name: "Economics", Category: "Humanities", IsActive: true},
	{Name: "Music", Category: "Arts", IsActive: true},
}

// seedSubjects loads the default subject catalog, skipping subjects that
// already exist (matched by name).
func (cli *commandLine) seedSubjects() error {
	ctx := context.Background()

	existing, err := cli.subjectRepo.QuerySubjects(ctx, false)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, sub := range existing {
		seen[sub.Name] = struct{}{}
	}

	var count int
	for _, sub := range defaultSubjects {
		if _, ok := seen[sub.Name]; ok {
			continue
		}
		if _, err = cli.subjectRepo.CreateSubject(ctx, sub); err != nil {
			return err
		}
		count++
	}
	logger.Printf("seeded %d subjects", count)
	return nil
}
