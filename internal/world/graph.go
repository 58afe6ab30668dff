package world

// Graph is an adjacency view of the active corridor network.
type Graph struct {
	edges map[int64][]Corridor
}

func NewGraph(corridors []Corridor) *Graph {
	g := &Graph{edges: make(map[int64][]Corridor)}
	for _, c := range corridors {
		if !c.IsActive {
			continue
		}
		g.edges[c.Origin] = append(g.edges[c.Origin], c)
		if c.IsBidirectional {
			reverse, _ := c.From(c.Destination)
			g.edges[c.Destination] = append(g.edges[c.Destination], reverse)
		}
	}
	return g
}

// Outgoing returns the corridors leaving locationID, oriented from it.
func (g *Graph) Outgoing(locationID int64) []Corridor {
	return g.edges[locationID]
}

// ShortestRoute finds the route with the fewest hops. Ties are broken by
// corridor order, which callers keep stable by sorting on id.
func (g *Graph) ShortestRoute(from, to int64) (Route, bool) {
	if from == to {
		return Route{}, true
	}

	prev := map[int64]Corridor{}
	visited := map[int64]bool{from: true}
	queue := []int64{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, c := range g.edges[current] {
			if visited[c.Destination] {
				continue
			}
			visited[c.Destination] = true
			prev[c.Destination] = c
			if c.Destination == to {
				return g.buildRoute(prev, from, to), true
			}
			queue = append(queue, c.Destination)
		}
	}
	return Route{}, false
}

func (g *Graph) buildRoute(prev map[int64]Corridor, from, to int64) Route {
	var path []Corridor
	for at := to; at != from; {
		c := prev[at]
		path = append(path, c)
		at = c.Origin
	}

	route := Route{Corridors: make([]Corridor, 0, len(path))}
	for i := len(path) - 1; i >= 0; i-- {
		route.Corridors = append(route.Corridors, path[i])
		route.TotalTime += path[i].TravelTime
		route.TotalFuel += path[i].FuelCost
	}
	return route
}

// WithinHops returns every location reachable from origin in 1..maxHops
// corridors, mapped to its hop count.
func (g *Graph) WithinHops(origin int64, maxHops int) map[int64]int {
	hops := map[int64]int{origin: 0}
	frontier := []int64{origin}
	for depth := 1; depth <= maxHops && len(frontier) > 0; depth++ {
		var next []int64
		for _, id := range frontier {
			for _, c := range g.edges[id] {
				if _, seen := hops[c.Destination]; seen {
					continue
				}
				hops[c.Destination] = depth
				next = append(next, c.Destination)
			}
		}
		frontier = next
	}
	delete(hops, origin)
	return hops
}
