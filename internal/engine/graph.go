package engine

import (
	"encoding/json"
	"fmt"

	"github.com/shaiso/Actionflow/internal/domain"
)

// Graph — граф зависимостей action.
//
// Граф строится детерминированно из списка action и никогда не
// редактируется вручную: при любом структурном изменении приложения
// его нужно построить заново через BuildGraph.
type Graph struct {
	// Dependencies — ключи значений, на которые ссылается action (actionID → keys).
	// Ссылка на ID другого action нормализуется к его filename.
	Dependencies map[string][]string

	// Edges — action, производящие зависимости (actionID → producer actionIDs).
	Edges map[string][]string

	// Unresolved — ключи, которые не производит ни одно поле ввода и ни один action.
	// Такие зависимости не могут быть удовлетворены пайплайном.
	Unresolved map[string][]string

	// Cycles — найденные циклы в виде путей [a, b, c, a].
	Cycles [][]string

	// order — ID action в порядке списка.
	order []string

	// cyclePaths — цикл, через который проходит action.
	cyclePaths map[string][]string
}

// BuildGraph строит граф зависимостей для приложения.
//
// Для каждого action собираются ссылки из всех языковых вариантов промпта
// и из конфигурации (сериализованной в JSON). Ссылка на собственный
// filename или ID не считается зависимостью: action может использовать
// свой предыдущий результат.
//
// Циклы не считаются ошибкой: они попадают в Cycles, а action на цикле
// помечаются через HasCycle.
func BuildGraph(app *domain.App) *Graph {
	g := &Graph{
		Dependencies: make(map[string][]string),
		Edges:        make(map[string][]string),
		Unresolved:   make(map[string][]string),
		Cycles:       make([][]string, 0),
		order:        make([]string, 0),
		cyclePaths:   make(map[string][]string),
	}
	if app == nil {
		return g
	}

	for i := range app.Actions {
		g.linkAction(app, &app.Actions[i])
	}

	g.detectCycles()

	return g
}

// linkAction вычисляет зависимости и рёбра одного action.
func (g *Graph) linkAction(app *domain.App, action *domain.Action) {
	g.order = append(g.order, action.ID)

	deps := make([]string, 0)
	edges := make([]string, 0)
	seenDeps := make(map[string]bool)
	seenEdges := make(map[string]bool)

	addDep := func(key string) {
		if !seenDeps[key] {
			seenDeps[key] = true
			deps = append(deps, key)
		}
	}
	addEdge := func(producerID string) {
		if !seenEdges[producerID] {
			seenEdges[producerID] = true
			edges = append(edges, producerID)
		}
	}

	for _, key := range ActionReferences(*action) {
		// Ссылка на собственный результат — не зависимость
		if key == action.Filename || key == action.ID {
			continue
		}

		if app.Input(key) != nil {
			addDep(key)
			continue
		}

		if producer := app.ActionByFilename(key); producer != nil {
			addDep(key)
			if producer.ID != action.ID {
				addEdge(producer.ID)
			}
			continue
		}

		if producer := app.Action(key); producer != nil {
			if producer.Filename == action.Filename {
				continue
			}
			addDep(producer.Filename)
			addEdge(producer.ID)
			continue
		}

		addDep(key)
		g.Unresolved[action.ID] = append(g.Unresolved[action.ID], key)
	}

	g.Dependencies[action.ID] = deps
	g.Edges[action.ID] = edges
}

// ActionReferences возвращает ключи всех ссылок action:
// из всех языковых вариантов промпта и из конфигурации.
func ActionReferences(action domain.Action) []string {
	texts := action.Prompt.Variants()
	if len(action.Config) > 0 {
		texts = append(texts, configText(action.Config))
	}
	return ExtractReferences(texts...)
}

// configText сериализует конфигурацию для поиска ссылок.
func configText(config map[string]any) string {
	b, err := json.Marshal(config)
	if err != nil {
		return fmt.Sprint(config)
	}
	return string(b)
}

// detectCycles ищет циклы обходом в глубину со стеком рекурсии.
//
// Обход идёт от каждого непосещённого action в порядке списка.
// Ребро в узел, который сейчас на стеке, — цикл.
func (g *Graph) detectCycles() {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.order))
	stack := make([]string, 0)

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)

		for _, next := range g.Edges[id] {
			switch color[next] {
			case gray:
				start := indexOf(stack, next)
				cycle := make([]string, 0, len(stack)-start+1)
				cycle = append(cycle, stack[start:]...)
				cycle = append(cycle, next)
				g.Cycles = append(g.Cycles, cycle)
				for _, member := range stack[start:] {
					if _, marked := g.cyclePaths[member]; !marked {
						g.cyclePaths[member] = cycle
					}
				}
			case white:
				visit(next)
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range g.order {
		if color[id] == white {
			visit(id)
		}
	}

	// Обход в глубину находит хотя бы один цикл в каждой сильно связной
	// компоненте, но не обязательно проходящий через все её узлы.
	// Досматриваем оставшиеся узлы поиском пути обратно в себя.
	for _, id := range g.order {
		if _, marked := g.cyclePaths[id]; marked {
			continue
		}
		if cycle := g.findCycleThrough(id); cycle != nil {
			g.Cycles = append(g.Cycles, cycle)
			for _, member := range cycle[:len(cycle)-1] {
				if _, marked := g.cyclePaths[member]; !marked {
					g.cyclePaths[member] = cycle
				}
			}
		}
	}
}

// findCycleThrough ищет кратчайший путь из id обратно в id (BFS).
func (g *Graph) findCycleThrough(id string) []string {
	parent := make(map[string]string)
	queue := make([]string, 0)

	for _, next := range g.Edges[id] {
		if _, seen := parent[next]; !seen {
			parent[next] = id
			queue = append(queue, next)
		}
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if node == id {
			// Восстанавливаем путь id → ... → id
			path := []string{id}
			for cur := parent[id]; cur != id; cur = parent[cur] {
				path = append(path, cur)
			}
			path = append(path, id)
			// path собран в обратном порядке
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}

		for _, next := range g.Edges[node] {
			if _, seen := parent[next]; !seen {
				parent[next] = node
				queue = append(queue, next)
			}
		}
	}

	return nil
}

// DependenciesOf возвращает копию списка зависимостей action.
func (g *Graph) DependenciesOf(actionID string) []string {
	return append([]string(nil), g.Dependencies[actionID]...)
}

// HasCycle возвращает true, если action лежит на цикле.
func (g *Graph) HasCycle(actionID string) bool {
	_, ok := g.cyclePaths[actionID]
	return ok
}

// CyclePath возвращает цикл, через который проходит action, или nil.
func (g *Graph) CyclePath(actionID string) []string {
	path, ok := g.cyclePaths[actionID]
	if !ok {
		return nil
	}
	return append([]string(nil), path...)
}

// Order возвращает топологический порядок action без циклов (алгоритм Кана).
//
// Производители идут раньше потребителей, при равенстве сохраняется
// порядок списка. Action на циклах и зависящие от них не попадают в результат.
func (g *Graph) Order() []string {
	inDegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string)

	for _, id := range g.order {
		inDegree[id] = len(g.Edges[id])
		for _, producer := range g.Edges[id] {
			dependents[producer] = append(dependents[producer], id)
		}
	}

	queue := make([]string, 0)
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	return order
}

// Actions возвращает ID action в порядке списка.
func (g *Graph) Actions() []string {
	return append([]string(nil), g.order...)
}

// Size возвращает количество action в графе.
func (g *Graph) Size() int {
	return len(g.order)
}

func indexOf(items []string, item string) int {
	for i, v := range items {
		if v == item {
			return i
		}
	}
	return -1
}
