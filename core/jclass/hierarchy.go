package jclass

const objectClass = "java/lang/Object"

// superChain returns the names of c and its pool-resolvable ancestors, in
// order. The walk stops at the first class the pool does not know.
func superChain(p *Pool, name string) []string {
	chain := []string{name}
	for {
		c := p.Get(name)
		if c == nil || c.Super == nil {
			return chain
		}
		name = c.Super.Name
		chain = append(chain, name)
	}
}

// CommonSuperType computes the nearest common ancestor of two classes, the
// merge a class writer needs when emitting stack map frames. Classes not in
// the pool degrade to java/lang/Object, the verifier's top reference type.
func CommonSuperType(p *Pool, a, b string) string {
	if a == b {
		return a
	}
	if a == objectClass || b == objectClass {
		return objectClass
	}
	chainA := superChain(p, a)
	chainB := superChain(p, b)
	seen := make(map[string]bool, len(chainA))
	for _, name := range chainA {
		seen[name] = true
	}
	for _, name := range chainB {
		if seen[name] {
			return name
		}
	}
	return objectClass
}
