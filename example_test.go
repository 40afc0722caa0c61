package zenify_test

import (
	"context"
	"fmt"

	"github.com/sdegenaar/zenify"
)

type Greeter struct {
	Greeting string
}

func ExamplePut() {
	scope := zenify.NewScope("app")
	defer scope.Close()

	_ = zenify.Put(scope, &Greeter{Greeting: "hello"})

	greeter, ok := zenify.Find[*Greeter](scope)
	fmt.Println(ok, greeter.Greeting)
	// Output: true hello
}

func ExampleLazily() {
	scope := zenify.NewScope("app")
	defer scope.Close()

	_ = zenify.Lazily(scope, func() *Greeter {
		fmt.Println("building greeter")
		return &Greeter{Greeting: "lazy hello"}
	})

	first, _ := zenify.Find[*Greeter](scope)
	second, _ := zenify.Find[*Greeter](scope)
	fmt.Println(first.Greeting, first == second)
	// Output:
	// building greeter
	// lazy hello true
}

func ExampleScope_Find() {
	parent := zenify.NewScope("parent")
	defer parent.Close()
	child := zenify.NewScope("child", zenify.WithParent(parent))

	_ = zenify.Put(parent, "from parent")

	value, _ := zenify.Find[string](child)
	fmt.Println(value)
	// Output: from parent
}

func ExampleHub_Listen() {
	manager := zenify.NewScopeManager()
	defer manager.Close()

	_ = zenify.Put(manager.RootScope(), "v1")

	sub := manager.Hub().Listen(zenify.KeyOf[string](), func(v any) {
		fmt.Println("observed:", v)
	})
	defer sub.Close()

	_ = zenify.Put(manager.RootScope(), "v2")
	manager.Hub().NotifyListeners(zenify.KeyOf[string]())
	// Output:
	// observed: v1
	// observed: v2
}

func ExampleRegisterModules() {
	scope := zenify.NewScope("app")
	defer scope.Close()

	config := zenify.NewModule("config", func(s *zenify.Scope) error {
		fmt.Println("registering config")
		return zenify.Put(s, &Greeter{Greeting: "configured"})
	})
	app := zenify.NewModule("app", func(s *zenify.Scope) error {
		greeter, _ := zenify.Find[*Greeter](s)
		fmt.Println("registering app with", greeter.Greeting)
		return nil
	}, zenify.DependsOnModules(config))

	_ = zenify.RegisterModules(context.Background(), scope, app)
	// Output:
	// registering config
	// registering app with configured
}
