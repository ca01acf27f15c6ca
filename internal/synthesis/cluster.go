package synthesis

import (
	"path"
	"regexp"
	"strings"

	"github.com/specdrift/specdrift/internal/similarity"
	"github.com/specdrift/specdrift/internal/types"
)

// cluster is an intermediate grouping: a key naming what the atoms share
// plus the member indices into the input atom slice, in input order.
type cluster struct {
	key     string
	members []int
}

// clusterAtoms dispatches to the configured strategy. Every strategy
// returns clusters in deterministic order: sorted by first-member index.
func clusterAtoms(atoms []types.InferredAtom, config Config) []cluster {
	switch config.Strategy {
	case StrategyModule:
		return clusterByKey(atoms, moduleKey)
	case StrategyCategory:
		return clusterByKey(atoms, func(a types.InferredAtom) string {
			return string(a.Category)
		})
	case StrategyNamespace:
		return clusterByKey(atoms, func(a types.InferredAtom) string {
			return path.Dir(a.SourceReference.FilePath)
		})
	case StrategySemantic:
		return clusterSemantic(atoms, config.SemanticThreshold)
	default:
		return clusterDomainConcept(atoms)
	}
}

// clusterByKey groups atoms by an extracted key, preserving input order for
// both clusters and members.
func clusterByKey(atoms []types.InferredAtom, key func(types.InferredAtom) string) []cluster {
	index := make(map[string]int)
	var clusters []cluster
	for i, atom := range atoms {
		k := key(atom)
		ci, seen := index[k]
		if !seen {
			ci = len(clusters)
			index[k] = ci
			clusters = append(clusters, cluster{key: k})
		}
		clusters[ci].members = append(clusters[ci].members, i)
	}
	return clusters
}

// containerKeywords are path segments that mark a module boundary; the
// segment that follows one of them names the module.
var containerKeywords = map[string]bool{
	"modules": true, "components": true, "pages": true, "features": true,
}

// moduleKey extracts a module name from the atom's file path: the segment
// after a recognized container keyword, or the parent directory name.
func moduleKey(atom types.InferredAtom) string {
	segments := strings.Split(atom.SourceReference.FilePath, "/")
	for i, seg := range segments {
		if containerKeywords[seg] && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	dir := path.Base(path.Dir(atom.SourceReference.FilePath))
	if dir == "." || dir == "/" {
		return "root"
	}
	return dir
}

// domainPatterns are the six fixed concept matchers for domain_concept
// clustering. Order matters: it breaks frequency ties.
var domainPatterns = []struct {
	concept string
	pattern *regexp.Regexp
}{
	{"identity", regexp.MustCompile(`(?i)\b(auth|login|logout|session|password|credential|identity|sign[- ]?(in|up|out)|token)\w*`)},
	{"crud", regexp.MustCompile(`(?i)\b(create|read|update|delete|list|fetch|save|store|retrieve|edit)\w*`)},
	{"commerce", regexp.MustCompile(`(?i)\b(payment|invoice|billing|order|cart|checkout|price|refund|subscription)\w*`)},
	{"messaging", regexp.MustCompile(`(?i)\b(message|notification|email|event|publish|subscribe|queue|webhook|alert)\w*`)},
	{"validation", regexp.MustCompile(`(?i)\b(validat|verif|sanitiz|normaliz|format|parse|schema)\w*`)},
	{"security", regexp.MustCompile(`(?i)\b(encrypt|decrypt|permission|role|access|secur|error|fail|denied|forbidden)\w*`)},
}

// clusterDomainConcept matches each atom against the six domain patterns,
// then assigns it to its globally most frequent matched concept. Ties break
// by pattern order; atoms matching nothing land in misc.
func clusterDomainConcept(atoms []types.InferredAtom) []cluster {
	matches := make([][]string, len(atoms))
	frequency := make(map[string]int)
	for i, atom := range atoms {
		text := atom.Description + " " + strings.Join(atom.ObservableOutcomes, " ")
		for _, dp := range domainPatterns {
			if dp.pattern.MatchString(text) {
				matches[i] = append(matches[i], dp.concept)
				frequency[dp.concept]++
			}
		}
	}

	index := make(map[string]int)
	var clusters []cluster
	for i := range atoms {
		best := ""
		for _, concept := range matches[i] {
			if best == "" || frequency[concept] > frequency[best] {
				best = concept
			}
		}
		if best == "" {
			best = "misc"
		}
		ci, seen := index[best]
		if !seen {
			ci = len(clusters)
			index[best] = ci
			clusters = append(clusters, cluster{key: best})
		}
		clusters[ci].members = append(clusters[ci].members, i)
	}
	return clusters
}

// clusterSemantic performs single-link agglomerative clustering: each
// unclustered atom seeds a new group, and later atoms join the first group
// whose seed meets the similarity threshold.
func clusterSemantic(atoms []types.InferredAtom, threshold float64) []cluster {
	var clusters []cluster
	var seeds []string
	for i, atom := range atoms {
		text := atom.Description + " " + strings.Join(atom.ObservableOutcomes, " ")
		placed := false
		for ci := range clusters {
			if similarity.Score(seeds[ci], text) >= threshold {
				clusters[ci].members = append(clusters[ci].members, i)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, cluster{key: atom.Description, members: []int{i}})
			seeds = append(seeds, text)
		}
	}
	return clusters
}
