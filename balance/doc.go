// Package balance evolves neural network controllers for a cart that balances a chain
// of rods.
//
// Each Agent owns a Skeleton, a chain of point masses joined by sticks and integrated
// with Verlet integration, whose base point is pinned to the cart. A feed-forward network
// from the nn subpackage reads the cart state and the horizontal offsets along the chain
// and pushes the cart left or right. A Scorer rewards every tick the chain stays up and
// penalizes the distance the cart travels.
//
// A Controller runs the generational loop: all agents are simulated in lock step until
// the generation ends, the best NumReproducing agents are kept as parents, and the next
// generation is filled with their mutated copies plus a fraction of fresh random agents.
//
// Basic usage:
//
//	config, err := balance.LoadConfig("configs/polebalance.ini")
//	if err != nil {
//		log.Fatalf("Error loading config: %v", err)
//	}
//
//	controller, err := balance.NewController(config)
//	if err != nil {
//		log.Fatalf("Error creating controller: %v", err)
//	}
//
//	best, err := controller.Run(context.Background())
//	if err != nil {
//		log.Fatalf("Training failed: %v", err)
//	}
//	fmt.Printf("Best score: %.1f\n", best.Score())
package balance
