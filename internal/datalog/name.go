package datalog

import "fmt"

const maxNameSuffix = 100000

// UniquifyName returns base if exists reports it free, otherwise
// "<base>__<n>" for the smallest free n >= 1.
func UniquifyName(base string, exists func(name string) (bool, error)) (string, error) {
	taken, err := exists(base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	for n := 1; n <= maxNameSuffix; n++ {
		name := fmt.Sprintf("%s__%d", base, n)
		if taken, err = exists(name); err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
	}
	return "", fmt.Errorf("datalog: no free name for %q after %d attempts", base, maxNameSuffix)
}
