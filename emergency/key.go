package emergency

import "strconv"

// freeKey returns key when it is not taken, otherwise key_<n> with the smallest free
// n, so records written within the same millisecond do not overwrite each other.
func freeKey(key string, taken func(string) (bool, error)) (string, error) {
	candidate := key
	for n := 1; ; n++ {
		used, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
		candidate = key + "_" + strconv.Itoa(n)
	}
}
